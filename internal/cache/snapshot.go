// Package cache holds short-lived read snapshots.
package cache

import (
	"sync"
	"time"
)

// Snapshot caches a single value for a fixed TTL.
//
// A nil *Snapshot is valid and never holds a value, so callers can leave
// caching disabled without nil checks.
type Snapshot[T any] struct {
	mu        sync.RWMutex
	value     T
	ok        bool
	expiresAt time.Time
	gen       uint64
	ttl       time.Duration
	now       func() time.Time
}

func NewSnapshot[T any](ttl time.Duration) *Snapshot[T] {
	return &Snapshot[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value if present and not expired.
func (c *Snapshot[T]) Get() (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ok || c.now().After(c.expiresAt) {
		return zero, false
	}
	return c.value, true
}

// Generation identifies the current invalidation epoch. Read it before
// computing a value and pass it to SetAt.
func (c *Snapshot[T]) Generation() uint64 {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Set stores v until the TTL elapses.
func (c *Snapshot[T]) Set(v T) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(v)
}

// SetAt stores v only if no Invalidate happened since gen was read, so a
// value computed from data older than the last write is never cached.
func (c *Snapshot[T]) SetAt(v T, gen uint64) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.store(v)
	return true
}

func (c *Snapshot[T]) store(v T) {
	c.value = v
	c.ok = true
	c.expiresAt = c.now().Add(c.ttl)
}

// Invalidate drops the cached value.
func (c *Snapshot[T]) Invalidate() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.ok = false
	c.gen++
}
