// Package config loads service configuration from an optional YAML file
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither the -config flag nor CONFIG_PATH names
// a file.
const DefaultPath = "config/config.yaml"

// Config is the full service configuration. Durations ride as integers
// with explicit units so the YAML stays plain.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// CacheConfig selects the cache backend and its connection settings.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// TTL returns the classification cache TTL.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RateLimitConfig tunes the fixed-window limiter.
type RateLimitConfig struct {
	Limit         int64 `yaml:"limit"`
	WindowSeconds int   `yaml:"window_seconds"`
	MaxWaitMS     int   `yaml:"max_wait_ms"`
	RetryEveryMS  int   `yaml:"retry_every_ms"`
}

// Window returns the fixed window length.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// MaxWait returns how long a denied request may wait for admission.
func (c RateLimitConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMS) * time.Millisecond
}

// RetryEvery returns the pause between admission retries.
func (c RateLimitConfig) RetryEvery() time.Duration {
	return time.Duration(c.RetryEveryMS) * time.Millisecond
}

// DispatchConfig sizes the three batch strategies.
type DispatchConfig struct {
	// MaxConcurrency gates the per-goroutine strategy.
	MaxConcurrency int `yaml:"max_concurrency"`
	// ThreadWorkers sizes the shared worker pool.
	ThreadWorkers int `yaml:"thread_workers"`
	// ProcWorkers is the child-process count for hash batches.
	ProcWorkers int `yaml:"proc_workers"`
	// HashRounds is the chained-hash iteration count per line.
	HashRounds int `yaml:"hash_rounds"`
}

// AuditConfig selects the audit backend.
type AuditConfig struct {
	Backend        string `yaml:"backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	ClickHouseAddr string `yaml:"clickhouse_addr"`
}

// Default returns the stock configuration: redis-backed cache on
// localhost, 100 requests per 10 second window, and auditing off.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "0.0.0.0:8080",
		},
		Cache: CacheConfig{
			Backend:    "redis",
			RedisAddr:  "localhost:6379",
			TTLSeconds: 60,
		},
		RateLimit: RateLimitConfig{
			Limit:         100,
			WindowSeconds: 10,
			MaxWaitMS:     500,
			RetryEveryMS:  50,
		},
		Dispatch: DispatchConfig{
			MaxConcurrency: 20,
			ThreadWorkers:  20,
			ProcWorkers:    4,
			HashRounds:     20000,
		},
		Audit: AuditConfig{
			Backend:        "none",
			SQLitePath:     "data/audit.db",
			ClickHouseAddr: "localhost:9000",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// one exists, then environment overrides. A missing file is not an error;
// a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// run on defaults
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lays environment overrides over the loaded values.
func (c *Config) applyEnv() {
	c.Server.ListenAddr = getEnv("LISTEN_ADDR", c.Server.ListenAddr)

	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("REDIS_DB", c.Cache.RedisDB)
	c.Cache.TTLSeconds = getEnvInt("CACHE_TTL", c.Cache.TTLSeconds)

	c.RateLimit.Limit = int64(getEnvInt("RATE_LIMIT", int(c.RateLimit.Limit)))
	c.RateLimit.WindowSeconds = getEnvInt("RATE_WINDOW", c.RateLimit.WindowSeconds)
	c.RateLimit.MaxWaitMS = getEnvInt("RATE_MAX_WAIT_MS", c.RateLimit.MaxWaitMS)
	c.RateLimit.RetryEveryMS = getEnvInt("RATE_RETRY_MS", c.RateLimit.RetryEveryMS)

	c.Dispatch.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", c.Dispatch.MaxConcurrency)
	c.Dispatch.ThreadWorkers = getEnvInt("THREAD_WORKERS", c.Dispatch.ThreadWorkers)
	c.Dispatch.ProcWorkers = getEnvInt("PROC_WORKERS", c.Dispatch.ProcWorkers)
	c.Dispatch.HashRounds = getEnvInt("HASH_ROUNDS", c.Dispatch.HashRounds)

	c.Audit.Backend = getEnv("AUDIT_BACKEND", c.Audit.Backend)
	c.Audit.SQLitePath = getEnv("AUDIT_SQLITE_PATH", c.Audit.SQLitePath)
	c.Audit.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", c.Audit.ClickHouseAddr)
}

// validate rejects values the service cannot run with.
func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "redis", "memory", "noop":
	default:
		return fmt.Errorf("unknown cache backend: %s (supported: redis, memory, noop)", c.Cache.Backend)
	}

	switch c.Audit.Backend {
	case "", "none", "sqlite", "clickhouse":
	default:
		return fmt.Errorf("unknown audit backend: %s (supported: none, sqlite, clickhouse)", c.Audit.Backend)
	}

	if c.RateLimit.Limit < 1 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.WindowSeconds < 1 {
		return fmt.Errorf("rate window must be positive, got %d", c.RateLimit.WindowSeconds)
	}
	if c.Cache.TTLSeconds < 1 {
		return fmt.Errorf("cache ttl must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Dispatch.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.Dispatch.MaxConcurrency)
	}
	if c.Dispatch.ThreadWorkers < 1 {
		return fmt.Errorf("thread_workers must be positive, got %d", c.Dispatch.ThreadWorkers)
	}
	if c.Dispatch.ProcWorkers < 1 {
		return fmt.Errorf("proc_workers must be positive, got %d", c.Dispatch.ProcWorkers)
	}
	if c.Dispatch.HashRounds < 1 {
		return fmt.Errorf("hash_rounds must be positive, got %d", c.Dispatch.HashRounds)
	}

	return nil
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
