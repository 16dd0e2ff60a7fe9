package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultProcs is the child-process count when none is configured.
const DefaultProcs = 4

// ProcessPool maps the chained-hash op across a batch using P child
// processes of this same binary, started in hash-worker mode. Children get
// their work over stdin and answer over stdout, one JSON document per line.
// They share nothing with the parent: no cache, no in-process state.
type ProcessPool struct {
	procs  int
	rounds int
	exe    string
	logger *slog.Logger
}

// NewProcessPool builds a pool of procs workers running rounds hash
// iterations per line. Non-positive values fall back to DefaultProcs and
// DefaultHashRounds. The executable path is resolved once so a failure
// surfaces at wiring time rather than on the first request.
func NewProcessPool(procs, rounds int, logger *slog.Logger) (*ProcessPool, error) {
	if procs < 1 {
		procs = DefaultProcs
	}
	if rounds < 1 {
		rounds = DefaultHashRounds
	}
	if logger == nil {
		logger = slog.Default()
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable for hash workers: %w", err)
	}

	return &ProcessPool{
		procs:  procs,
		rounds: rounds,
		exe:    exe,
		logger: logger,
	}, nil
}

// Hash computes the chained hash of every line, fanned out over the child
// processes in contiguous chunks. Results come back aligned with input
// order. Unlike the classification strategies there is no per-item fault
// mode here: a worker that dies fails the whole call, and the error group's
// context kills the remaining workers.
func (p *ProcessPool) Hash(ctx context.Context, lines []string) ([]string, error) {
	if len(lines) == 0 {
		return []string{}, nil
	}

	hashes := make([]string, len(lines))

	g, ctx := errgroup.WithContext(ctx)
	spans := chunkSpans(len(lines), p.procs)
	p.logger.Debug("dispatching hash batch to workers",
		"lines", len(lines),
		"workers", len(spans),
		"rounds", p.rounds)

	for _, span := range spans {
		start, end := span[0], span[1]
		g.Go(func() error {
			return p.runChunk(ctx, lines, hashes, start, end)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// runChunk feeds lines[start:end] to one child process and collects its
// results into the shared hashes slice. Chunks are disjoint, so workers
// never write the same index.
func (p *ProcessPool) runChunk(ctx context.Context, lines, hashes []string, start, end int) error {
	var stdin bytes.Buffer
	enc := json.NewEncoder(&stdin)
	for i := start; i < end; i++ {
		if err := enc.Encode(hashTask{ID: i, Line: lines[i], Rounds: p.rounds}); err != nil {
			return fmt.Errorf("encoding hash task %d: %w", i, err)
		}
	}

	cmd := exec.CommandContext(ctx, p.exe)
	cmd.Env = append(os.Environ(), WorkerEnv+"=1")
	cmd.Stdin = &stdin

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting hash worker: %w", err)
	}

	dec := json.NewDecoder(stdout)
	for i := start; i < end; i++ {
		var res hashResult
		if err := dec.Decode(&res); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return fmt.Errorf("reading hash result: %w", err)
		}
		if res.ID < 0 || res.ID >= len(hashes) {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return fmt.Errorf("hash result for out-of-range line %d", res.ID)
		}
		hashes[res.ID] = res.Hash
	}

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("hash worker exited: %w: %s", err, msg)
		}
		return fmt.Errorf("hash worker exited: %w", err)
	}
	return nil
}

// chunkSpans splits n items into at most k contiguous [start, end) spans,
// sized as evenly as integer division allows.
func chunkSpans(n, k int) [][2]int {
	if k > n {
		k = n
	}
	spans := make([][2]int, 0, k)
	size, rem := n/k, n%k
	start := 0
	for i := 0; i < k; i++ {
		end := start + size
		if i < rem {
			end++
		}
		spans = append(spans, [2]int{start, end})
		start = end
	}
	return spans
}
