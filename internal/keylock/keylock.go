// Package keylock serializes read-modify-write sequences on the same key.
//
// Locks are striped: keys hash onto a fixed set of mutexes, so two distinct
// keys may share a stripe. Callers must never hold two keys at once.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// Striped is a fixed pool of mutexes indexed by key hash.
type Striped struct {
	stripes []sync.Mutex
}

// New returns a Striped with n stripes (256 when n <= 0).
func New(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its release func.
func (s *Striped) Lock(key string) (unlock func()) {
	mu := &s.stripes[s.index(key)]
	mu.Lock()
	return mu.Unlock
}

func (s *Striped) index(key string) uint64 {
	return xxhash.Sum64String(key) % uint64(len(s.stripes))
}
