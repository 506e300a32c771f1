package binance

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// responseCache is a TTL cache for GET responses keyed on method, URL and
// canonical query. Each entry carries its own expiry, so callers choose a
// TTL per request. Expired entries are evicted lazily on lookup.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	clock   clock.Clock
}

func newResponseCache(clk clock.Clock) *responseCache {
	if clk == nil {
		clk = clock.New()
	}
	return &responseCache{
		entries: make(map[string]cacheEntry),
		clock:   clk,
	}
}

// get returns the cached body for key, or nil when the key is absent or
// its entry has expired. Expired entries are removed on the way out.
func (c *responseCache) get(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry.body
}

// put stores body under key for ttl. A non-positive ttl stores nothing.
// Store and expiry stamp happen under one lock acquisition so readers
// never observe a partially written entry.
func (c *responseCache) put(key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		body:      body,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
