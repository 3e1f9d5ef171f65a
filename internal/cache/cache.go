// Package cache provides a small bounded TTL cache. It exists so the RBAC
// resolver's memoization is an explicit, injectable component whose clock
// tests can control, rather than a hidden package-level map.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a bounded string-keyed cache with per-entry expiry. Reads are
// lock-cheap; writes are idempotent re-derivations, so last-writer-wins is
// acceptable. Safe for concurrent use.
type TTL[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// New returns a cache holding at most max entries for ttl each.
func New[V any](max int, ttl time.Duration) *TTL[V] {
	if max <= 0 {
		max = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TTL[V]{
		entries: make(map[string]entry[V], max),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Test hook; not for production wiring.
func (c *TTL[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value for key if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok || now.After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache TTL. When the cache is full,
// expired entries are dropped first; if none are expired the entry closest
// to expiry is evicted.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictLocked(now)
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry.
func (c *TTL[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V], c.max)
}

// Len reports the number of entries, expired ones included until evicted.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL[V]) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			found = true
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if !found && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
