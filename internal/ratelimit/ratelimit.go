// Package ratelimit admits or rejects requests against a fixed-window
// counter kept in the shared cache store, so every process pointing at the
// same store shares one budget.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Immortalbear27/log_level_api/internal/cache"
)

// Config tunes a Limiter.
type Config struct {
	// Limit is the number of requests admitted per window.
	Limit int64
	// Window is the fixed window length.
	Window time.Duration
	// MaxWait bounds how long a denied request may wait for the window to
	// turn over before it is rejected. Zero rejects immediately.
	MaxWait time.Duration
	// RetryEvery is the pause between admission retries while waiting.
	RetryEvery time.Duration
}

// DefaultConfig matches the service's stock deployment: 100 requests per
// 10 second window, with a short bounded wait before giving up.
func DefaultConfig() Config {
	return Config{
		Limit:      100,
		Window:     10 * time.Second,
		MaxWait:    500 * time.Millisecond,
		RetryEvery: 50 * time.Millisecond,
	}
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed bool
	// RetryAfter advises rejected callers how long to back off. Zero when
	// Allowed.
	RetryAfter time.Duration
}

// Limiter gates requests on the store's windowed counter. Denied requests
// wait a bounded time for admission instead of spinning forever; callers
// that cannot be admitted within MaxWait get a rejected Decision to turn
// into a 429.
type Limiter struct {
	store  cache.Store
	cfg    Config
	logger *slog.Logger
}

// New builds a Limiter. Unset Limit, Window, and RetryEvery fall back to
// DefaultConfig values; MaxWait is taken as given, so zero means reject
// denied requests immediately.
func New(store cache.Store, cfg Config, logger *slog.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.Limit < 1 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = def.RetryEvery
	}
	if cfg.MaxWait < 0 {
		cfg.MaxWait = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, cfg: cfg, logger: logger}
}

// Limit reports the configured per-window budget.
func (l *Limiter) Limit() int64 { return l.cfg.Limit }

// Window reports the configured window length.
func (l *Limiter) Window() time.Duration { return l.cfg.Window }

// Acquire attempts to admit one request under key. A denied request
// retries every RetryEvery until MaxWait elapses or ctx is done; each
// retry counts against the window, exactly like a fresh attempt.
//
// A store error admits the request: with the backend gone the service
// already runs uncounted, and refusing traffic on top of that would turn
// one failure into two.
func (l *Limiter) Acquire(ctx context.Context, key string) Decision {
	allowed, err := l.store.Allow(ctx, key, l.cfg.Limit, l.cfg.Window)
	if err != nil {
		l.logger.Warn("rate limit check failed, admitting request", "key", key, "error", err)
		return Decision{Allowed: true}
	}
	if allowed {
		return Decision{Allowed: true}
	}

	if l.cfg.MaxWait <= 0 {
		return l.rejected()
	}

	deadline := time.NewTimer(l.cfg.MaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.RetryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.rejected()
		case <-deadline.C:
			return l.rejected()
		case <-ticker.C:
			allowed, err := l.store.Allow(ctx, key, l.cfg.Limit, l.cfg.Window)
			if err != nil {
				l.logger.Warn("rate limit check failed, admitting request", "key", key, "error", err)
				return Decision{Allowed: true}
			}
			if allowed {
				return Decision{Allowed: true}
			}
		}
	}
}

func (l *Limiter) rejected() Decision {
	return Decision{Allowed: false, RetryAfter: l.cfg.Window}
}
