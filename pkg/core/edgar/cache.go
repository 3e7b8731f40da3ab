package edgar

import (
	"sync"
	"time"
)

// responseCache memoizes fetched bodies by URL for a fixed TTL so
// repeated pipeline runs within the window do not re-hit the SEC.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{ttl: ttl, entries: map[string]cacheEntry{}}
}

func (c *responseCache) get(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, url)
		return nil, false
	}
	return entry.body, true
}

func (c *responseCache) set(url string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{body: body, expires: time.Now().Add(c.ttl)}
}
