package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/MrEthical07/authengine/store"
)

// Namespaces separating the two logical stores inside one backend.
const (
	usersNamespace    = "users"
	bookingsNamespace = "bookings"
)

// Backends holds the opened stores and their shared resources.
type Backends struct {
	Users    store.Store
	Bookings store.Store
	// Redis is nil unless redis.addr is configured.
	Redis redis.UniversalClient

	closers []func() error
}

// Close releases everything in reverse opening order.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backends) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// OpenBackends connects to the configured Redis (if any) and opens the
// user and booking stores. fs is used by the file backend; nil means the
// OS filesystem.
func OpenBackends(ctx context.Context, cfg *Config, fs afero.Fs, logger zerolog.Logger) (*Backends, error) {
	b := &Backends{}
	ok := false
	defer func() {
		if !ok {
			_ = b.Close()
		}
	}()

	if cfg.Redis.Addr != "" {
		client, err := openRedis(ctx, cfg.Redis, b, logger)
		if err != nil {
			return nil, err
		}
		b.Redis = client
	}

	users, bookings, err := openStores(ctx, cfg, fs, b)
	if err != nil {
		return nil, err
	}

	if cfg.Store.CacheLife > 0 {
		users, err = cached(ctx, users, cfg.Store)
		if err != nil {
			return nil, err
		}
		bookings, err = cached(ctx, bookings, cfg.Store)
		if err != nil {
			return nil, err
		}
	}
	b.Users = users
	b.Bookings = bookings
	b.onClose(func() error { return errors.Join(store.Close(users), store.Close(bookings)) })

	logger.Info().
		Str("backend", cfg.Store.Backend).
		Bool("cache", cfg.Store.CacheLife > 0).
		Bool("redis", b.Redis != nil).
		Msg("stores opened")

	ok = true
	return b, nil
}

func openRedis(ctx context.Context, cfg RedisConfig, b *Backends, logger zerolog.Logger) (redis.UniversalClient, error) {
	addr := cfg.Addr
	if addr == EmbeddedRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		b.onClose(func() error { mr.Close(); return nil })
		addr = mr.Addr()
		logger.Warn().Str("addr", addr).Msg("using embedded redis; data is not persisted")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	b.onClose(client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// openStores builds the raw backend stores. Close of the returned stores is
// registered by the caller; shared pools are registered here.
func openStores(ctx context.Context, cfg *Config, fs afero.Fs, b *Backends) (store.Store, store.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case BackendMemory:
		return store.NewMemory(), store.NewMemory(), nil

	case BackendFile:
		if fs == nil {
			fs = afero.NewOsFs()
		}
		users, err := store.NewFile(fs, sc.Path, sc.LogPath)
		if err != nil {
			return nil, nil, err
		}
		bookings, err := store.NewFile(fs, sc.BookingsPath, sc.LogPath)
		if err != nil {
			_ = users.Close()
			return nil, nil, err
		}
		return users, bookings, nil

	case BackendRedis:
		if b.Redis == nil {
			return nil, nil, errors.New("redis store requires a redis client")
		}
		return store.NewRedis(b.Redis, sc.Prefix+usersNamespace+":"),
			store.NewRedis(b.Redis, sc.Prefix+bookingsNamespace+":"), nil

	case BackendSQLite, BackendPostgres:
		dialect := Dialect(sc.Backend)
		db, err := store.OpenSQL(dialect, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		b.onClose(db.Close)
		if err := store.Migrate(ctx, db, dialect); err != nil {
			return nil, nil, err
		}
		return sqlPair(db, dialect)

	case BackendS3:
		api, err := store.NewS3Client(ctx, sc.Region, sc.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		users, err := store.NewS3(api, sc.Bucket, sc.Prefix+usersNamespace+"/")
		if err != nil {
			return nil, nil, err
		}
		bookings, err := store.NewS3(api, sc.Bucket, sc.Prefix+bookingsNamespace+"/")
		if err != nil {
			return nil, nil, err
		}
		return users, bookings, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}

func sqlPair(db *sql.DB, dialect store.Dialect) (store.Store, store.Store, error) {
	users, err := store.NewSQL(db, dialect, usersNamespace)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := store.NewSQL(db, dialect, bookingsNamespace)
	if err != nil {
		return nil, nil, err
	}
	return users, bookings, nil
}

func cached(ctx context.Context, next store.Store, sc StoreConfig) (store.Store, error) {
	cache, err := store.NewCache(ctx, sc.CacheLife, sc.CacheMaxMB)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return store.NewCached(next, cache), nil
}

// Dialect maps a sqlite or postgres backend name to its SQL dialect.
func Dialect(backend string) store.Dialect {
	if backend == BackendPostgres {
		return store.DialectPostgres
	}
	return store.DialectSQLite
}
