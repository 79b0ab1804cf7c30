package evalcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// DefaultSweepInterval is how often the background sweep removes expired
// entries that were never touched again after expiry.
const DefaultSweepInterval = time.Minute

type memoryEntry struct {
	decision  evaluation.Decision
	expiresAt time.Time
}

type indexKey struct {
	environmentID uuid.UUID
	flagKey       string
}

// Memory is the in-process Cache implementation. It keeps a secondary index
// from (environment, flag key) to the set of cached user IDs so Invalidate
// drops exactly the matching entries instead of clearing the whole cache.
type Memory struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[Fingerprint]memoryEntry
	index   map[indexKey]map[string]struct{}

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	ttl           time.Duration
	sweepInterval time.Duration
}

// WithTTL sets how long cached decisions stay fresh. Panics for
// non-positive durations.
func WithTTL(ttl time.Duration) MemoryOption {
	if ttl <= 0 {
		panic("evalcache: TTL must be > 0")
	}
	return func(c *memoryConfig) { c.ttl = ttl }
}

// WithSweepInterval sets the period of the background cleanup pass. A zero
// interval disables the sweep; expired entries are then only removed lazily.
func WithSweepInterval(d time.Duration) MemoryOption {
	if d < 0 {
		panic("evalcache: sweep interval must be >= 0")
	}
	return func(c *memoryConfig) { c.sweepInterval = d }
}

// NewMemory creates an in-process evaluation cache and starts its background
// sweep. Call Close to stop the sweep goroutine.
func NewMemory(opts ...MemoryOption) *Memory {
	cfg := &memoryConfig{
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Memory{
		ttl:       cfg.ttl,
		entries:   make(map[Fingerprint]memoryEntry),
		index:     make(map[indexKey]map[string]struct{}),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	if cfg.sweepInterval > 0 {
		go m.sweepLoop(cfg.sweepInterval)
	} else {
		close(m.sweepDone)
	}

	return m
}

// Get returns the cached decision, treating expired entries as a miss.
func (m *Memory) Get(_ context.Context, fp Fingerprint) (evaluation.Decision, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[fp]
	m.mu.RUnlock()

	if !ok {
		return evaluation.Decision{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		// Lazy eviction: the sweep will reclaim the memory later.
		return evaluation.Decision{}, false, nil
	}
	return entry.decision, true, nil
}

// Put stores the decision under the fingerprint and records it in the
// invalidation index.
func (m *Memory) Put(_ context.Context, fp Fingerprint, d evaluation.Decision) error {
	ik := indexKey{environmentID: fp.EnvironmentID, flagKey: fp.FlagKey}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[fp] = memoryEntry{decision: d, expiresAt: time.Now().Add(m.ttl)}
	users, ok := m.index[ik]
	if !ok {
		users = make(map[string]struct{})
		m.index[ik] = users
	}
	users[fp.UserID] = struct{}{}
	return nil
}

// Invalidate drops every cached decision for the (environment, flag key)
// pair. Entries for other flags or environments are untouched.
func (m *Memory) Invalidate(_ context.Context, environmentID uuid.UUID, flagKey string) error {
	ik := indexKey{environmentID: environmentID, flagKey: flagKey}

	m.mu.Lock()
	defer m.mu.Unlock()

	for userID := range m.index[ik] {
		delete(m.entries, Fingerprint{
			EnvironmentID: environmentID,
			FlagKey:       flagKey,
			UserID:        userID,
		})
	}
	delete(m.index, ik)
	return nil
}

// Clear drops all cached decisions.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[Fingerprint]memoryEntry)
	m.index = make(map[indexKey]map[string]struct{})
	return nil
}

// Len reports the number of physically present entries, including expired
// ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the background sweep. The cache remains readable but no longer
// reclaims expired entries.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopSweep)
	})
	<-m.sweepDone
	return nil
}

func (m *Memory) sweepLoop(interval time.Duration) {
	defer close(m.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes expired entries. It snapshots candidates under the read lock
// and removes them one at a time, so the write lock is never held across the
// whole pass and request-path readers are not starved.
func (m *Memory) sweep() {
	now := time.Now()

	m.mu.RLock()
	expired := make([]Fingerprint, 0)
	for fp, entry := range m.entries {
		if now.After(entry.expiresAt) {
			expired = append(expired, fp)
		}
	}
	m.mu.RUnlock()

	for _, fp := range expired {
		m.mu.Lock()
		// Re-check: the entry may have been refreshed since the snapshot.
		if entry, ok := m.entries[fp]; ok && now.After(entry.expiresAt) {
			delete(m.entries, fp)
			ik := indexKey{environmentID: fp.EnvironmentID, flagKey: fp.FlagKey}
			if users, ok := m.index[ik]; ok {
				delete(users, fp.UserID)
				if len(users) == 0 {
					delete(m.index, ik)
				}
			}
		}
		m.mu.Unlock()
	}
}
