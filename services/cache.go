package services

import (
	"sync"
	"time"

	"paper-birthdays/repository"
)

// Cache is a small TTL cache sitting in front of the feature store. It is a
// read-through convenience only; idempotence is guaranteed by the persisted
// uniqueness constraint, never by cache state.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	item    *repository.HistoryItem
	expires time.Time
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached selection for the key, dropping it when expired.
func (c *Cache) Get(key string) (*repository.HistoryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.item, true
}

// Set stores a selection under the key.
func (c *Cache) Set(key string, item *repository.HistoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{item: item, expires: c.now().Add(c.ttl)}
}

// Invalidate removes the key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
