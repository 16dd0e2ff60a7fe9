package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestLineKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := LineKey("2024-01-01 12:00:00 ERROR disk full")
		b := LineKey("2024-01-01 12:00:00 ERROR disk full")
		if a != b {
			t.Errorf("same line produced different keys: %s vs %s", a, b)
		}
	})

	t.Run("distinct lines distinct keys", func(t *testing.T) {
		a := LineKey("ERROR one")
		b := LineKey("ERROR two")
		if a == b {
			t.Errorf("different lines produced the same key: %s", a)
		}
	})

	t.Run("namespace and shape", func(t *testing.T) {
		key := LineKey("anything")
		if !strings.HasPrefix(key, "loglevel:") {
			t.Errorf("key missing namespace prefix: %s", key)
		}
		digest := strings.TrimPrefix(key, "loglevel:")
		if len(digest) != 64 {
			t.Errorf("expected 64 hex chars, got %d: %s", len(digest), digest)
		}
		for _, r := range digest {
			if !strings.ContainsRune("0123456789abcdef", r) {
				t.Errorf("non-hex character %q in digest %s", r, digest)
				break
			}
		}
	})

	t.Run("disjoint from rate namespace", func(t *testing.T) {
		if strings.HasPrefix(LineKey("x"), RateKeyPrefix) {
			t.Error("line keys must not share the rate-limit namespace")
		}
	})
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	store := NewNoop()
	defer store.Close()

	if store.Backend() != BackendNoop {
		t.Errorf("Backend() = %s, want %s", store.Backend(), BackendNoop)
	}

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Errorf("Get after Set: ok=%v err=%v, want miss with nil error", ok, err)
	}

	for i := 0; i < 100; i++ {
		allowed, err := store.Allow(ctx, "ratelimit:test", 1, time.Second)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !allowed {
			t.Fatal("noop store denied a request")
		}
	}

	stats := store.Stats()
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Allowed != 100 {
		t.Errorf("Allowed = %d, want 100", stats.Allowed)
	}
	if stats.Denied != 0 {
		t.Errorf("Denied = %d, want 0", stats.Denied)
	}
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	if store.Backend() != BackendMemory {
		t.Errorf("Backend() = %s, want %s", store.Backend(), BackendMemory)
	}

	if _, ok, err := store.Get(ctx, "absent"); err != nil || ok {
		t.Errorf("Get on empty store: ok=%v err=%v, want miss", ok, err)
	}

	if err := store.Set(ctx, "k", "ERROR", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || val != "ERROR" {
		t.Errorf("Get = (%q, %v), want (\"ERROR\", true)", val, ok)
	}

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	if err := store.Set(ctx, "k", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); !ok {
		t.Fatal("value expired before its TTL")
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("value survived past its TTL")
	}
}

func TestMemoryStore_AllowWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	key := RateKeyPrefix + "log_api:/batch"
	window := 100 * time.Millisecond

	for i := 0; i < 5; i++ {
		allowed, err := store.Allow(ctx, key, 5, window)
		if err != nil {
			t.Fatalf("Allow #%d failed: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d denied inside the limit", i+1)
		}
	}

	allowed, err := store.Allow(ctx, key, 5, window)
	if err != nil {
		t.Fatalf("Allow #6 failed: %v", err)
	}
	if allowed {
		t.Error("request 6 allowed over the limit")
	}

	time.Sleep(window + 20*time.Millisecond)

	allowed, err = store.Allow(ctx, key, 5, window)
	if err != nil {
		t.Fatalf("Allow after window failed: %v", err)
	}
	if !allowed {
		t.Error("request denied after the window reset")
	}

	stats := store.Stats()
	if stats.Denied != 1 {
		t.Errorf("Denied = %d, want 1", stats.Denied)
	}
}

func TestMemoryStore_AllowConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	const limit = 50
	const callers = 200

	var wg sync.WaitGroup
	admitted := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := store.Allow(ctx, "ratelimit:concurrent", limit, time.Minute)
			if err != nil {
				t.Errorf("Allow failed: %v", err)
				return
			}
			if allowed {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != limit {
		t.Errorf("admitted %d callers, want exactly %d", count, limit)
	}
}

func TestMemoryStore_DistinctWindows(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	defer store.Close()

	for i := 0; i < 3; i++ {
		if allowed, _ := store.Allow(ctx, "ratelimit:log_api:/batch", 3, time.Minute); !allowed {
			t.Fatalf("call %d on first key denied", i+1)
		}
	}
	if allowed, _ := store.Allow(ctx, "ratelimit:log_api:/batch", 3, time.Minute); allowed {
		t.Fatal("fourth call on exhausted key allowed")
	}

	if allowed, _ := store.Allow(ctx, "ratelimit:log_api:/parse", 3, time.Minute); !allowed {
		t.Error("separate key shares the exhausted window")
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	t.Run("memory", func(t *testing.T) {
		store, err := New(ctx, Config{Backend: BackendMemory}, logger)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer store.Close()
		if store.Backend() != BackendMemory {
			t.Errorf("Backend() = %s, want %s", store.Backend(), BackendMemory)
		}
	})

	t.Run("noop", func(t *testing.T) {
		store, err := New(ctx, Config{Backend: BackendNoop}, logger)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer store.Close()
		if store.Backend() != BackendNoop {
			t.Errorf("Backend() = %s, want %s", store.Backend(), BackendNoop)
		}
	})

	t.Run("redis fallback", func(t *testing.T) {
		cfg := Config{
			Backend:     BackendRedis,
			RedisAddr:   "127.0.0.1:1",
			DialTimeout: 200 * time.Millisecond,
		}
		store, err := New(ctx, cfg, logger)
		if err != nil {
			t.Fatalf("New returned error instead of falling back: %v", err)
		}
		defer store.Close()
		if store.Backend() != BackendNoop {
			t.Errorf("Backend() = %s, want %s fallback", store.Backend(), BackendNoop)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := New(ctx, Config{Backend: "etcd"}, logger); err == nil {
			t.Error("expected error for unknown backend")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendMemory {
		t.Errorf("default backend = %s, want %s", cfg.Backend, BackendMemory)
	}
	if cfg.RedisAddr == "" {
		t.Error("default redis addr is empty")
	}
}

func BenchmarkLineKey(b *testing.B) {
	line := "2024-01-01 12:00:00 ERROR something went wrong in the pipeline"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = LineKey(fmt.Sprintf("%s %d", line, i))
	}
}
