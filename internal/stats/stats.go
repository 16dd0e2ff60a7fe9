// Package stats keeps process-wide request counters behind a snapshot API.
package stats

import (
	"sync"
	"time"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// Snapshot is a point-in-time view of the aggregator, shaped for the
// stats endpoint.
type Snapshot struct {
	Uptime      string       `json:"uptime"`
	TotalLines  int64        `json:"total_lines"`
	Batches     int64        `json:"batches"`
	FailedLines int64        `json:"failed_lines"`
	RateLimited int64        `json:"rate_limited"`
	LevelCounts levels.Tally `json:"level_counts"`
}

// Aggregator accumulates classification results across requests. Handlers
// feed it directly; every method is safe for concurrent use.
type Aggregator struct {
	mu          sync.RWMutex
	startTime   time.Time
	totalLines  int64
	batches     int64
	failed      int64
	rateLimited int64
	levelCounts levels.Tally
}

// New returns an empty Aggregator anchored at the current time.
func New() *Aggregator {
	return &Aggregator{
		startTime:   time.Now(),
		levelCounts: levels.NewTally(),
	}
}

// RecordLine registers a single classified line.
func (a *Aggregator) RecordLine(level levels.Level) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalLines++
	a.levelCounts.Add(level)
}

// RecordBatch registers one batch's tally plus its failed-line count.
func (a *Aggregator) RecordBatch(tally levels.Tally, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.batches++
	a.totalLines += tally.Total() + int64(failed)
	a.failed += int64(failed)
	a.levelCounts.Merge(tally)
}

// RecordHashBatch registers one hash batch. Hash lines carry no level,
// so only the line and batch counters move.
func (a *Aggregator) RecordHashBatch(lines int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.batches++
	a.totalLines += int64(lines)
}

// RecordRateLimited registers a request rejected by the limiter.
func (a *Aggregator) RecordRateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rateLimited++
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := levels.NewTally()
	counts.Merge(a.levelCounts)

	return Snapshot{
		Uptime:      time.Since(a.startTime).Truncate(time.Second).String(),
		TotalLines:  a.totalLines,
		Batches:     a.batches,
		FailedLines: a.failed,
		RateLimited: a.rateLimited,
		LevelCounts: counts,
	}
}
