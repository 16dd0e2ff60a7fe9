package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		rec, err := New(ctx, Config{Backend: BackendNone}, testLogger())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer rec.Close(ctx)
		if rec.Backend() != BackendNone {
			t.Errorf("Backend() = %s, want %s", rec.Backend(), BackendNone)
		}
	})

	t.Run("empty defaults to none", func(t *testing.T) {
		rec, err := New(ctx, Config{}, testLogger())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer rec.Close(ctx)
		if rec.Backend() != BackendNone {
			t.Errorf("Backend() = %s, want %s", rec.Backend(), BackendNone)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := Config{
			Backend:    "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
		}
		rec, err := New(ctx, cfg, testLogger())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer rec.Close(ctx)
		if rec.Backend() != "sqlite" {
			t.Errorf("Backend() = %s, want sqlite", rec.Backend())
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := New(ctx, Config{Backend: "kafka"}, testLogger()); err == nil {
			t.Error("expected error for unknown backend")
		}
	})
}
