// Package cache defines the key/value store used both as the memoization
// layer for line classification and as the counter substrate for
// fixed-window rate limiting.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// Key namespaces. Classification fingerprints and rate-limiter counters
// live in disjoint prefixes so the two uses can never collide.
const (
	lineKeyPrefix = "loglevel:"

	// RateKeyPrefix is the namespace reserved for rate-limiter counters.
	RateKeyPrefix = "ratelimit:"
)

// Store is the cache contract shared by every backend. Implementations must
// be safe for concurrent use; Get/Set and Allow are individually atomic but
// no cross-key guarantee is provided.
type Store interface {
	// Get returns the value cached under key. ok is false when the key is
	// absent or expired; absence is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key for ttl. Best-effort: after ttl the key is
	// equivalent to absent.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Allow atomically increments the window counter for key, arming an
	// expiry of window on the first increment, and reports whether the
	// post-increment count is within limit.
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)

	// Stats returns the operation counters accumulated since construction.
	Stats() Stats

	// Backend names the implementation ("redis", "memory" or "noop").
	Backend() string

	// Close releases any resources held by the store.
	Close() error
}

// Stats exposes basic operation counters for observability.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// counters is embedded by every backend to account Stats without locking.
type counters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
}

func (c *counters) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Allowed: c.allowed.Load(),
		Denied:  c.denied.Load(),
	}
}

func (c *counters) countAllow(allowed bool) {
	if allowed {
		c.allowed.Add(1)
	} else {
		c.denied.Add(1)
	}
}

// LineKey returns the cache key for a raw log line: the classification
// namespace tag plus the hex SHA-256 fingerprint of the line's bytes.
// Byte-identical lines always map to the same key regardless of which
// request carried them.
func LineKey(line string) string {
	sum := sha256.Sum256([]byte(line))
	return lineKeyPrefix + hex.EncodeToString(sum[:])
}
