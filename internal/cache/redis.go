package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDialTimeout = 2 * time.Second

// allowScript increments the window counter and arms the window expiry when
// the increment is the one that opens the window. Running as a script keeps
// INCR and PEXPIRE a single atomic operation, so a burst of simultaneous
// first callers cannot interleave between the two.
var allowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisStore backs the cache with a Redis server, sharing cached
// classifications and rate-limit counters across every process that points
// at the same server.
type RedisStore struct {
	counters

	client *redis.Client
	addr   string
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedis connects to Redis and verifies liveness with a ping. A failed
// ping is returned as an error; callers decide whether to fall back.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client, addr: cfg.Addr}, nil
}

// Get fetches the value for key. A redis.Nil reply means the key is absent
// or expired, which is a miss, not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		s.misses.Add(1)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}

	s.hits.Add(1)
	return val, true, nil
}

// Set stores value under key with ttl.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Allow runs the increment-and-arm script and compares the post-increment
// count against limit.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	count, err := allowScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis allow %s: %w", key, err)
	}

	allowed := count <= limit
	s.countAllow(allowed)
	return allowed, nil
}

// Backend identifies the implementation.
func (s *RedisStore) Backend() string { return BackendRedis }

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
