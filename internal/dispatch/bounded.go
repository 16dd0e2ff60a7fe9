package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// Bounded runs one goroutine per line, admitting at most K at a time
// through a weighted semaphore. Lines past the gate run to completion; the
// batch waits for every line before returning.
type Bounded struct {
	limit int64
}

// NewBounded returns a strategy admitting at most limit concurrent lines.
// Non-positive limits are raised to 1.
func NewBounded(limit int) *Bounded {
	if limit < 1 {
		limit = 1
	}
	return &Bounded{limit: int64(limit)}
}

// Map applies op to every line. Outcomes are placed by input index, so the
// caller sees submission order no matter how completion interleaves. A
// cancelled context stops admitting new lines; already-admitted lines still
// finish, and the lines never admitted carry the context error.
func (b *Bounded) Map(ctx context.Context, lines []string, op Op) []Outcome {
	outcomes := make([]Outcome, len(lines))
	sem := semaphore.NewWeighted(b.limit)

	var wg sync.WaitGroup
	for i, line := range lines {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{Level: levels.Unknown, Err: err}
			continue
		}

		wg.Add(1)
		go func(i int, line string) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = runOp(ctx, op, line)
		}(i, line)
	}
	wg.Wait()

	return outcomes
}
