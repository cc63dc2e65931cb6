package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache with TTL expiry. Expired entries are
// never returned but are only physically removed by a sweep, which runs on
// Put once the entry count exceeds the soft bound.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryCache) { m.now = now }
}

// NewMemoryCache creates a cache serving entries younger than ttl and
// sweeping once more than maxEntries are held. Non-positive arguments
// fall back to DefaultTTL and DefaultMaxEntries.
func NewMemoryCache(ttl time.Duration, maxEntries int, opts ...MemoryOption) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	m := &MemoryCache{
		entries:    make(map[string]Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements Reader. It never mutates the cache.
func (m *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.Expired(m.now(), m.ttl) {
		return Entry{}, false
	}
	return e, true
}

// Put implements Writer.
func (m *MemoryCache) Put(_ context.Context, key, zipcode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = Entry{Zipcode: zipcode, InsertedAt: m.now()}
	if len(m.entries) > m.maxEntries {
		m.sweepLocked()
	}
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
// Valid entries are kept even if the cache stays above its bound.
func (m *MemoryCache) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *MemoryCache) sweepLocked() int {
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.Expired(now, m.ttl) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Cache = (*MemoryCache)(nil)
