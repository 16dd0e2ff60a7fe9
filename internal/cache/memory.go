package cache

import (
	"context"
	"sync"
	"time"
)

const janitorInterval = 1 * time.Minute

// MemoryStore is a process-local Store with per-entry expiry and windowed
// counters. It mirrors the Redis backend's semantics for a single process,
// which makes it the natural backend for tests and single-instance
// deployments where limits don't need to span replicas.
type MemoryStore struct {
	counters

	mu      sync.Mutex
	entries map[string]memEntry
	windows map[string]*memWindow

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

type memWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemory creates an in-memory store and starts the background janitor
// that evicts expired entries and stale windows.
func NewMemory() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memEntry),
		windows: make(map[string]*memWindow),
		stopCh:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.janitor()

	return s
}

// Get returns the live value for key; expired entries are evicted lazily.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		if ok {
			delete(s.entries, key)
		}
		s.misses.Add(1)
		return "", false, nil
	}

	s.hits.Add(1)
	return e.value, true, nil
}

// Set stores value under key until ttl elapses.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Allow increments the counter for key within the current window. The window
// expiry is armed by the increment that opens the window, under the same
// lock, so increment-then-arm is a single atomic step.
func (s *MemoryStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &memWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++

	allowed := w.count <= limit
	s.countAllow(allowed)
	return allowed, nil
}

// Backend identifies the implementation.
func (s *MemoryStore) Backend() string { return BackendMemory }

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	for k, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, k)
		}
	}
}
