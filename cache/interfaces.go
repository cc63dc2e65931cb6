// Package cache provides time-bounded storage for resolved zipcodes,
// keyed by a normalized address key.
package cache

import (
	"context"
	"time"
)

// Entry is a cached zipcode and the time it was stored. Entries are
// replaced on write, never mutated.
type Entry struct {
	Zipcode    string    `json:"zipcode"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Expired reports whether the entry is at least ttl old at now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.InsertedAt) >= ttl
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns the entry for key if present and not expired.
	Get(ctx context.Context, key string) (Entry, bool)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Put stores zipcode under key, stamped with the current time.
	Put(ctx context.Context, key, zipcode string) error
}

// Cache combines both cache operations
type Cache interface {
	Reader
	Writer
}

const (
	// DefaultTTL is how long a zipcode is served from cache.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries is the soft bound that triggers a sweep on write.
	DefaultMaxEntries = 100
)
