package pricing

import (
	"sync"
	"sync/atomic"
)

const defaultCacheEntries = 65536

// Cache memoizes TryPrice results per exact input tuple.
// It is owned by the caller; nothing in this package keeps one globally.
type Cache struct {
	next       Pricer
	maxEntries int

	mu      sync.RWMutex
	entries map[Input]Result

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache wraps next. maxEntries <= 0 selects a default bound; when the bound is
// reached the cache starts over empty.
func NewCache(next Pricer, maxEntries int) *Cache {
	if next == nil {
		next = Black76Pricer{}
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &Cache{
		next:       next,
		maxEntries: maxEntries,
		entries:    make(map[Input]Result),
	}
}

// TryPrice implements Pricer
func (c *Cache) TryPrice(in Input) Result {
	c.mu.RLock()
	res, ok := c.entries[in]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return res
	}

	c.misses.Add(1)
	res = c.next.TryPrice(in)

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[Input]Result)
	}
	c.entries[in] = res
	c.mu.Unlock()

	return res
}

// Stats returns the hit and miss counters
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of memoized inputs
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every memoized entry
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Input]Result)
	c.mu.Unlock()
}
