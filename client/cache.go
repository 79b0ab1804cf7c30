package client

import (
	"sync"
	"time"
)

const (
	// DefaultCacheTTL bounds how stale a locally cached decision may be.
	DefaultCacheTTL = time.Minute

	// DefaultCleanupInterval is how often expired entries are swept.
	DefaultCleanupInterval = 5 * time.Minute
)

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// decisionCache is the in-process decision cache, keyed by (flagKey, userID).
// Expired entries are a miss on read even before the sweeper removes them.
type decisionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func cacheKey(flagKey, userID string) string {
	return flagKey + ":" + userID
}

func (c *decisionCache) get(flagKey, userID string) (Decision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(flagKey, userID)]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return Decision{}, false
	}
	return entry.decision, true
}

func (c *decisionCache) set(flagKey, userID string, decision Decision) {
	c.mu.Lock()
	c.entries[cacheKey(flagKey, userID)] = cacheEntry{
		decision:  decision,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *decisionCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
