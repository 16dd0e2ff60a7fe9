package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Immortalbear27/log_level_api/internal/audit/clickhouse"
	"github.com/Immortalbear27/log_level_api/internal/audit/sqlite"
)

// BackendNone disables auditing.
const BackendNone = "none"

// Config selects and configures an audit backend.
type Config struct {
	// Backend is one of "none", "sqlite", "clickhouse".
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// ClickHouseAddr is the server address for the clickhouse backend.
	ClickHouseAddr string
}

// DefaultConfig disables auditing.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendNone,
		SQLitePath:     "data/audit.db",
		ClickHouseAddr: "localhost:9000",
	}
}

// New creates the configured Recorder. Unlike the cache, a misconfigured
// audit backend is a startup error: the operator asked for a trail and
// silently running without one would defeat it.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendNone, "":
		return NewNop(), nil

	case sqlite.Backend:
		store, err := sqlite.New(sqlite.DefaultConfig(cfg.SQLitePath), logger)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite audit recorder: %w", err)
		}
		logger.Info("audit trail enabled", "backend", sqlite.Backend, "path", cfg.SQLitePath)
		return store, nil

	case clickhouse.Backend:
		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = cfg.ClickHouseAddr
		store, err := clickhouse.New(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating clickhouse audit recorder: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown audit backend: %s (supported: none, sqlite, clickhouse)", cfg.Backend)
	}
}
