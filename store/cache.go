package store

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/MrEthical07/authengine/internal/keylock"
)

// Cached fronts another Store with an in-process bigcache. Reads populate
// the cache, writes go through to the backing store first, and deletes
// remove the backing entry before invalidating. Operations on one key are
// serialized so a read that missed cannot refill an entry a concurrent
// Delete already removed. Entries expire after the cache's life window,
// which bounds staleness when other processes write to the same backing
// store.
type Cached struct {
	next  Store
	cache *bigcache.BigCache
	locks *keylock.Striped
}

// NewCache builds a bigcache with the given entry lifetime and memory cap.
// The context is accepted for symmetry with the other backend constructors.
func NewCache(_ context.Context, life time.Duration, maxMB int) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(life)
	cfg.CleanWindow = life
	if maxMB > 0 {
		cfg.HardMaxCacheSize = maxMB
	}
	return bigcache.NewBigCache(cfg)
}

// NewCached wraps next with cache.
func NewCached(next Store, cache *bigcache.BigCache) *Cached {
	return &Cached{next: next, cache: cache, locks: keylock.New(0)}
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := c.cache.Get(key); err == nil {
		return v, nil
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	if v, err := c.cache.Get(key); err == nil {
		return v, nil
	}
	v, err := c.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(key, v)
	return v, nil
}

func (c *Cached) Put(ctx context.Context, key string, value []byte) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	if err := c.next.Put(ctx, key, value); err != nil {
		_ = c.invalidate(key)
		return err
	}
	_ = c.cache.Set(key, value)
	return nil
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	if err := c.next.Delete(ctx, key); err != nil {
		_ = c.invalidate(key)
		return err
	}
	return c.invalidate(key)
}

// Close closes the cache and the backing store.
func (c *Cached) Close() error {
	return errors.Join(c.cache.Close(), Close(c.next))
}

func (c *Cached) invalidate(key string) error {
	err := c.cache.Delete(key)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}
