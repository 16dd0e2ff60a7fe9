package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Immortalbear27/log_level_api/internal/cache"
	"github.com/Immortalbear27/log_level_api/internal/parser"
	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// countingParser wraps a real parser and counts how often it runs.
type countingParser struct {
	inner parser.Parser
	calls atomic.Int64
}

func (p *countingParser) ParseLevel(line string) levels.Level {
	p.calls.Add(1)
	return p.inner.ParseLevel(line)
}

// faultyStore fails every operation, standing in for an unreachable server.
type faultyStore struct {
	cache.NoopStore
}

func (s *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (s *faultyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("connection refused")
}

func TestProcessLine_CacheAside(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	defer store.Close()

	counting := &countingParser{inner: parser.NewPlainParser()}
	a := New(counting, store, time.Minute, testLogger())

	line := "2024-01-01 12:00:00 ERROR disk full"

	level, err := a.ProcessLine(ctx, line)
	if err != nil {
		t.Fatalf("ProcessLine failed: %v", err)
	}
	if level != levels.Error {
		t.Errorf("first pass = %s, want %s", level, levels.Error)
	}
	if got := counting.calls.Load(); got != 1 {
		t.Fatalf("parser ran %d times on first pass, want 1", got)
	}

	// Same line again: served from cache, parser does not run.
	level, err = a.ProcessLine(ctx, line)
	if err != nil {
		t.Fatalf("ProcessLine failed: %v", err)
	}
	if level != levels.Error {
		t.Errorf("second pass = %s, want %s", level, levels.Error)
	}
	if got := counting.calls.Load(); got != 1 {
		t.Errorf("parser ran %d times after cache hit, want 1", got)
	}

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("cache stats = %+v, want 1 hit and 1 miss", stats)
	}
}

func TestProcessLine_UnknownIsCachedToo(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	defer store.Close()

	counting := &countingParser{inner: parser.NewPlainParser()}
	a := New(counting, store, time.Minute, testLogger())

	line := "garbage"

	level, err := a.ProcessLine(ctx, line)
	if err != nil {
		t.Fatalf("ProcessLine failed: %v", err)
	}
	if level != levels.Unknown {
		t.Errorf("level = %s, want %s", level, levels.Unknown)
	}

	level, err = a.ProcessLine(ctx, line)
	if err != nil {
		t.Fatalf("ProcessLine failed: %v", err)
	}
	if level != levels.Unknown {
		t.Errorf("cached level = %s, want %s", level, levels.Unknown)
	}
	if got := counting.calls.Load(); got != 1 {
		t.Errorf("parser ran %d times, want 1: UNKNOWN results must be cached", got)
	}
}

func TestProcessLine_DistinctLinesDistinctEntries(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	defer store.Close()

	a := New(parser.NewPlainParser(), store, time.Minute, testLogger())

	first, _ := a.ProcessLine(ctx, "2024-01-01 12:00:00 INFO up")
	second, _ := a.ProcessLine(ctx, "2024-01-01 12:00:00 ERROR down")

	if first != levels.Info || second != levels.Error {
		t.Errorf("got (%s, %s), want (INFO, ERROR)", first, second)
	}
}

func TestProcessLine_StructuredMode(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	defer store.Close()

	a := New(parser.NewJSONParser(), store, time.Minute, testLogger())

	level, err := a.ProcessLine(ctx, `{"level": "WARNING", "msg": "spooling"}`)
	if err != nil {
		t.Fatalf("ProcessLine failed: %v", err)
	}
	if level != levels.Warning {
		t.Errorf("level = %s, want %s", level, levels.Warning)
	}
}

func TestProcessLine_SurvivesCacheFailure(t *testing.T) {
	ctx := context.Background()
	a := New(parser.NewPlainParser(), &faultyStore{}, time.Minute, testLogger())

	level, err := a.ProcessLine(ctx, "2024-01-01 12:00:00 ERROR still classified")
	if err != nil {
		t.Fatalf("ProcessLine failed despite fail-soft cache policy: %v", err)
	}
	if level != levels.Error {
		t.Errorf("level = %s, want %s", level, levels.Error)
	}
}

func TestNew_Defaults(t *testing.T) {
	a := New(parser.NewPlainParser(), cache.NewNoop(), 0, nil)
	if a.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", a.ttl, DefaultTTL)
	}
	if a.logger == nil {
		t.Error("logger not defaulted")
	}
}
