package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Supported backend names.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNoop   = "noop"
)

// Config selects and configures a cache backend.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DialTimeout   time.Duration
}

// DefaultConfig returns a config using the in-process memory backend.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMemory,
		RedisAddr:   "localhost:6379",
		DialTimeout: defaultDialTimeout,
	}
}

// New creates a Store for the configured backend.
//
// When the redis backend is requested but the server cannot be reached, New
// logs a warning and returns a no-op store instead of failing: the service
// stays up, every lookup misses and every request is admitted.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendRedis:
		store, err := NewRedis(ctx, RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.DialTimeout,
		})
		if err != nil {
			logger.Warn("redis unavailable, caching and rate limiting disabled",
				"addr", cfg.RedisAddr,
				"error", err)
			return NewNoop(), nil
		}
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
		return store, nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendNoop:
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
