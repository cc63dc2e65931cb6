// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	IsraelPost IsraelPostConfig `envPrefix:"ISRAELPOST_"`
	Cache      CacheConfig      `envPrefix:"CACHE_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Worker     WorkerConfig     `envPrefix:"WORKER_"`
}

// IsraelPostConfig holds the upstream endpoint settings
type IsraelPostConfig struct {
	Endpoint string        `env:"ENDPOINT" envDefault:"http://www.israelpost.co.il/zip_data1.nsf/SearchZip?OpenAgent&"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// CacheConfig selects and sizes the lookup cache
type CacheConfig struct {
	Backend    string        `env:"BACKEND" envDefault:"memory"`
	TTL        time.Duration `env:"TTL" envDefault:"5m"`
	MaxEntries int           `env:"MAX_ENTRIES" envDefault:"100"`
	KeyPrefix  string        `env:"KEY_PREFIX" envDefault:"mikud:"`
}

// RedisConfig is shared by the redis cache backend and the job queue
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// WorkerConfig holds prefetch worker settings
type WorkerConfig struct {
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsesRedis returns true if the cache is shared through Redis
func (c *Config) UsesRedis() bool {
	return c.Cache.Backend == BackendRedis
}

// Validate rejects settings the lookup service cannot run with
func (c *Config) Validate() error {
	if c.IsraelPost.Timeout <= 0 {
		return fmt.Errorf("ISRAELPOST_TIMEOUT must be positive, got %s", c.IsraelPost.Timeout)
	}
	u, err := url.Parse(c.IsraelPost.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid ISRAELPOST_ENDPOINT %q", c.IsraelPost.Endpoint)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.Cache.MaxEntries)
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.Cache.Backend)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}
