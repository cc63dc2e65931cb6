package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces zipcode keys in a shared Redis.
const DefaultKeyPrefix = "mikud:"

// RedisCache is a Cache shared between processes. Expiry is delegated to
// Redis via the key TTL, so no sweep is needed.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get implements Reader. Redis errors are treated as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := r.client.Get(ctx, HashKey(r.prefix, key)).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false
	}
	// Redis expiry has second granularity.
	if e.Expired(r.now(), r.ttl) {
		return Entry{}, false
	}
	return e, true
}

// Put implements Writer.
func (r *RedisCache) Put(ctx context.Context, key, zipcode string) error {
	data, err := json.Marshal(Entry{Zipcode: zipcode, InsertedAt: r.now()})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, HashKey(r.prefix, key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
