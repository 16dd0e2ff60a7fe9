package cache

import (
	"context"
	"time"
)

// NoopStore caches nothing and admits everything. It is the deterministic
// fallback when no networked store is reachable: classification still works,
// just without memoization or admission control.
type NoopStore struct {
	counters
}

// NewNoop creates a no-op store.
func NewNoop() *NoopStore {
	return &NoopStore{}
}

// Get always reports the key as absent.
func (s *NoopStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.misses.Add(1)
	return "", false, nil
}

// Set discards the value.
func (s *NoopStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

// Allow admits every caller.
func (s *NoopStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	s.allowed.Add(1)
	return true, nil
}

// Backend identifies the implementation.
func (s *NoopStore) Backend() string { return BackendNoop }

// Close is a no-op.
func (s *NoopStore) Close() error { return nil }
