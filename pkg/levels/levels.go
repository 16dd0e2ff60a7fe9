// Package levels defines the severity levels a log line can classify to
// and the tally type used to aggregate classifications across a batch.
package levels

// Level is the severity extracted from a single log line.
type Level string

const (
	// Info is routine operational output.
	Info Level = "INFO"

	// Warning signals a recoverable anomaly.
	Warning Level = "WARNING"

	// Error signals a failure reported by the emitting service.
	Error Level = "ERROR"

	// Unknown is the classification for lines whose severity cannot be
	// determined. It is a valid, cacheable outcome, not a failure.
	Unknown Level = "UNKNOWN"
)

// FromString maps a severity token to a Level. Only the three exact
// uppercase tokens are recognized; anything else maps to Unknown.
func FromString(s string) Level {
	switch Level(s) {
	case Info, Warning, Error:
		return Level(s)
	default:
		return Unknown
	}
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	switch l {
	case Info, Warning, Error, Unknown:
		return true
	}
	return false
}

// Tally maps each observed level to its occurrence count within one batch.
// A Tally is owned by a single goroutine; concurrent workers each fill their
// own and merge at the end.
type Tally map[Level]int64

// NewTally returns an empty tally.
func NewTally() Tally {
	return make(Tally)
}

// Add records one occurrence of level l.
func (t Tally) Add(l Level) {
	t[l]++
}

// Merge folds other into t.
func (t Tally) Merge(other Tally) {
	for l, n := range other {
		t[l] += n
	}
}

// Total returns the number of occurrences recorded across all levels.
func (t Tally) Total() int64 {
	var sum int64
	for _, n := range t {
		sum += n
	}
	return sum
}
