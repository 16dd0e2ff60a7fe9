package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultHashRounds is the chained-hash iteration count when a task does
// not specify one.
const DefaultHashRounds = 20000

// WorkerEnv marks a child process as a hash worker. The entry point checks
// it before any other startup work.
const WorkerEnv = "LOG_API_HASH_WORKER"

// hashTask and hashResult are the JSON-lines protocol between the parent
// and a hash worker: one task per stdin line, one result per stdout line,
// correlated by id.
type hashTask struct {
	ID     int    `json:"id"`
	Line   string `json:"line"`
	Rounds int    `json:"rounds"`
}

type hashResult struct {
	ID   int    `json:"id"`
	Hash string `json:"hash"`
}

// ChainedHash burns CPU deterministically: rounds iterations of
// h = sha256(line || h), returned as lowercase hex. The same line and
// rounds always produce the same digest, in any process.
func ChainedHash(line string, rounds int) string {
	if rounds < 1 {
		rounds = DefaultHashRounds
	}

	var h []byte
	for i := 0; i < rounds; i++ {
		sum := sha256.Sum256(append([]byte(line), h...))
		h = sum[:]
	}
	return hex.EncodeToString(h)
}

// RunHashWorker is the child-process loop: decode tasks from r until EOF,
// write one result per task to w. Any decode or encode fault ends the
// worker with an error; the parent treats that as a failed chunk.
func RunHashWorker(r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		var task hashTask
		if err := dec.Decode(&task); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding hash task: %w", err)
		}

		result := hashResult{
			ID:   task.ID,
			Hash: ChainedHash(task.Line, task.Rounds),
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("writing hash result: %w", err)
		}
	}
}
