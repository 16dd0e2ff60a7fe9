// Package analyzer classifies log lines with a cache-aside lookup: known
// fingerprints come straight from the cache, unknown lines are parsed and
// written back for the next caller.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Immortalbear27/log_level_api/internal/cache"
	"github.com/Immortalbear27/log_level_api/internal/parser"
	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// DefaultTTL bounds how long a cached classification stays valid.
const DefaultTTL = 60 * time.Second

// Analyzer classifies lines for one request. It holds no per-line state of
// its own, so a single value may serve concurrent goroutines; callers keep
// their own tallies.
type Analyzer struct {
	parser parser.Parser
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

// New builds an Analyzer over the given parser and cache backend. A zero or
// negative ttl falls back to DefaultTTL; a nil logger falls back to
// slog.Default().
func New(p parser.Parser, store cache.Store, ttl time.Duration, logger *slog.Logger) *Analyzer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		parser: p,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// ProcessLine classifies one line. The cache is consulted first; on a miss
// the line is parsed and the result, UNKNOWN included, is written back under
// the line's fingerprint.
//
// Cache trouble never fails the line: a Get error is treated as a miss and
// a Set error only costs the write-back. Both are logged and classification
// proceeds from the parser.
func (a *Analyzer) ProcessLine(ctx context.Context, line string) (levels.Level, error) {
	key := cache.LineKey(line)

	cached, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.logger.Warn("cache get failed, parsing instead", "error", err)
	}
	if ok {
		return levels.FromString(cached), nil
	}

	level := a.parser.ParseLevel(line)

	if err := a.store.Set(ctx, key, string(level), a.ttl); err != nil {
		a.logger.Warn("cache set failed, result not stored", "error", err)
	}

	return level, nil
}
