package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryCache is a process-local cache. Expired entries are dropped on
// access or by Prune.
type MemoryCache[K comparable, V any] struct {
	items map[K]item[V]
	mu    sync.RWMutex
	now   func() time.Time
}

func NewMemoryCache[K comparable, V any]() *MemoryCache[K, V] {
	return NewMemoryCacheWithClock[K, V](time.Now)
}

func NewMemoryCacheWithClock[K comparable, V any](now func() time.Time) *MemoryCache[K, V] {
	return &MemoryCache[K, V]{
		items: make(map[K]item[V]),
		now:   now,
	}
}

func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, exists := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.expiresAt.Equal(it.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return it.value, true
}

func (c *MemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

func (c *MemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

func (c *MemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]item[V])
}

// Len counts stored entries, expired ones included until pruned.
func (c *MemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Prune drops expired entries and reports how many were removed.
func (c *MemoryCache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

var _ Cache[string, []byte] = (*MemoryCache[string, []byte])(nil)
