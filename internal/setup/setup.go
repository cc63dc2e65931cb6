// Package setup wires the lookup client and its cache from configuration.
package setup

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/mikud/cache"
	"github.com/briangreenhill/mikud/internal/config"
	"github.com/briangreenhill/mikud/israelpost"
)

// Service is a configured lookup client plus whatever it holds open.
type Service struct {
	Client *israelpost.Client
	redis  *redis.Client
}

// Close releases the Redis connection, if any.
func (s *Service) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// New builds the client with the configured cache backend. A Redis backend
// must answer a ping before New returns.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	svc := &Service{}

	var store israelpost.Cache
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		svc.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rc := cache.NewRedisCache(svc.redis, cfg.Cache.KeyPrefix, cfg.Cache.TTL)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			_ = svc.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		store = rc
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis zipcode cache")
	default:
		store = cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		logger.Info().Dur("ttl", cfg.Cache.TTL).Int("max_entries", cfg.Cache.MaxEntries).Msg("using in-memory zipcode cache")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}

	svc.Client = israelpost.New(
		israelpost.WithHTTPClient(httpClient),
		israelpost.WithEndpoint(cfg.IsraelPost.Endpoint),
		israelpost.WithTimeout(cfg.IsraelPost.Timeout),
		israelpost.WithCache(store),
		israelpost.WithLogger(logger.With().Str("component", "israelpost").Logger()),
	)
	return svc, nil
}

// RedisClientOpt is the asynq connection for the prefetch queue.
func RedisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}
