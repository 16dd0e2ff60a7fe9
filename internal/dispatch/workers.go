package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// WorkerPool runs batch items on a fixed pool of reusable goroutines. The
// pool is shared across requests and lives until Close.
type WorkerPool struct {
	pool *ants.Pool
}

// NewWorkerPool builds a pool of size workers. Non-positive sizes are
// raised to 1.
func NewWorkerPool(size int) (*WorkerPool, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &WorkerPool{pool: pool}, nil
}

// Map applies op to every line on the pool's workers and blocks until the
// whole batch has completed. Outcomes are placed by input index. A line
// that cannot be submitted carries the submission error as its Err.
func (p *WorkerPool) Map(ctx context.Context, lines []string, op Op) []Outcome {
	outcomes := make([]Outcome, len(lines))

	var wg sync.WaitGroup
	for i, line := range lines {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = runOp(ctx, op, line)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = Outcome{Level: levels.Unknown, Err: fmt.Errorf("submitting line: %w", err)}
		}
	}
	wg.Wait()

	return outcomes
}

// Size reports the pool's worker capacity.
func (p *WorkerPool) Size() int {
	return p.pool.Cap()
}

// Close releases the pool's workers.
func (p *WorkerPool) Close() {
	p.pool.Release()
}
