// Package dispatch fans classification work out across a batch of lines.
// Three strategies share one contract: results come back aligned with input
// order, and one line's fault never aborts the rest of the batch.
package dispatch

import (
	"context"
	"fmt"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// Op is the per-line unit of work a strategy maps across a batch.
type Op func(ctx context.Context, line string) (levels.Level, error)

// Outcome is one line's result. Err is set when the op failed or panicked;
// the level is only meaningful when Err is nil.
type Outcome struct {
	Level levels.Level
	Err   error
}

// Collect folds a batch's outcomes into a level tally and a count of failed
// items. Failed items are excluded from the tally, so
// tally.Total() + failed == len(outcomes).
func Collect(outcomes []Outcome) (levels.Tally, int) {
	tally := levels.NewTally()
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		tally.Add(o.Level)
	}
	return tally, failed
}

// runOp invokes op with panic isolation: a panicking op becomes that item's
// Err instead of tearing down the batch.
func runOp(ctx context.Context, op Op, line string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Level: levels.Unknown, Err: fmt.Errorf("op panicked: %v", r)}
		}
	}()

	level, err := op(ctx, line)
	return Outcome{Level: level, Err: err}
}
