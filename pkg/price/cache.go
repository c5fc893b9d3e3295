package price

import (
	"sync"
	"time"
)

type cacheEntry struct {
	quote     Quote
	expiresAt time.Time
}

// Cache is a TTL cache of per-symbol quotes. Entries are superseded by
// fresher puts, never mutated in place. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached quote for symbol if it has not expired.
func (c *Cache) Get(symbol string, now time.Time) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok || now.After(e.expiresAt) {
		return Quote{}, false
	}
	return e.quote, true
}

// GetStale returns the last cached quote regardless of expiry. Used as the
// tier between "all sources failed" and "static fallback".
func (c *Cache) GetStale(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok {
		return Quote{}, false
	}
	return e.quote, true
}

// Put stores a quote with the given TTL, superseding any existing entry.
func (c *Cache) Put(q Quote, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[q.Symbol] = cacheEntry{quote: q, expiresAt: now.Add(ttl)}
}

// Evict removes expired entries. Called opportunistically by the resolver.
func (c *Cache) Evict(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for s, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, s)
		}
	}
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
