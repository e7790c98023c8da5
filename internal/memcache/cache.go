// Package memcache is a small bounded in-process TTL cache shared by the
// revocation registry and the session cache. It is an acceleration layer
// only; callers must never treat it as the source of truth.
package memcache

import (
	"sync"
	"time"
)

const evictBatch = 500

type entry[V any] struct {
	val       V
	expiresAt time.Time
	createdAt time.Time
}

// Cache is safe for concurrent use. On overflow it first purges expired
// entries, then evicts oldest-inserted entries until under the cap:
// approximate LRU by insertion order, which is enough given the short
// staleness window.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	maxSize int
}

func New[V any](maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		maxSize: maxSize,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.val, true
}

func (c *Cache[V]) Set(key string, val V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Overwriting an existing key never needs room.
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}
	c.entries[key] = entry[V]{val: val, expiresAt: now.Add(ttl), createdAt: now}
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes expired entries and reports how many were dropped.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	dropped := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

func (c *Cache[V]) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}

	// Still full: drop the oldest-inserted entries in one batch.
	type aged struct {
		key       string
		createdAt time.Time
	}
	oldest := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		oldest = append(oldest, aged{k, e.createdAt})
	}
	for i := 0; i < evictBatch && len(c.entries) >= c.maxSize && i < len(oldest); i++ {
		min := i
		for j := i + 1; j < len(oldest); j++ {
			if oldest[j].createdAt.Before(oldest[min].createdAt) {
				min = j
			}
		}
		oldest[i], oldest[min] = oldest[min], oldest[i]
		delete(c.entries, oldest[i].key)
	}
}
