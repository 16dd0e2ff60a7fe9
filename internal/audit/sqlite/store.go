// Package sqlite provides a SQLite-backed audit recorder.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
	"github.com/Immortalbear27/log_level_api/pkg/models"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// Backend is the factory name of this recorder.
const Backend = "sqlite"

// Config holds SQLite recorder configuration.
type Config struct {
	DBPath        string
	BatchSize     int
	FlushInterval time.Duration
	// QueueSize bounds the pending-record channel. When the queue is full,
	// new records are dropped rather than blocking the request.
	QueueSize int
}

// DefaultConfig returns recorder defaults for the given database path.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:        dbPath,
		BatchSize:     100,
		FlushInterval: 200 * time.Millisecond,
		QueueSize:     1000,
	}
}

// Store writes audit records to SQLite through a batching goroutine: Record
// enqueues and returns, the writer groups pending records into one
// transaction per flush.
type Store struct {
	db *sql.DB

	writeCh   chan models.BatchAudit
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *slog.Logger
}

// New opens (or creates) the database, applies the schema, and starts the
// batch writer.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("sqlite audit: empty database path")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 200 * time.Millisecond
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s := &Store{
		db:      db,
		writeCh: make(chan models.BatchAudit, cfg.QueueSize),
		closeCh: make(chan struct{}),
		logger:  logger,
	}

	s.wg.Add(1)
	go s.batchWriter(cfg.BatchSize, cfg.FlushInterval)

	return s, nil
}

// Record enqueues one audit record. A full queue drops the record with a
// warning instead of blocking the caller.
func (s *Store) Record(ctx context.Context, e models.BatchAudit) error {
	select {
	case <-s.closeCh:
		return errors.New("audit recorder is closed")
	default:
	}

	select {
	case s.writeCh <- e:
		return nil
	default:
		s.logger.Warn("audit queue full, dropping record", "endpoint", e.Endpoint)
		return nil
	}
}

// Backend identifies the implementation.
func (s *Store) Backend() string { return Backend }

// batchWriter groups pending records and writes each group in a single
// transaction. On shutdown it drains the queue before returning.
func (s *Store) batchWriter(batchSize int, flushInterval time.Duration) {
	defer s.wg.Done()

	batch := make([]models.BatchAudit, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.writeBatch(batch); err != nil {
			s.logger.Error("audit batch write failed", "error", err, "records", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-s.writeCh:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.closeCh:
			// Drain without closing writeCh; Record may still be mid-send.
			for {
				select {
				case e := <-s.writeCh:
					batch = append(batch, e)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// writeBatch inserts a group of records in one transaction.
func (s *Store) writeBatch(batch []models.BatchAudit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO batch_audit (
			recorded_at, endpoint, mode, line_count,
			info_count, warning_count, error_count, unknown_count,
			failed_count, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		_, err := stmt.Exec(
			e.Time.UnixMilli(),
			e.Endpoint,
			e.Mode,
			e.Lines,
			e.Counts[levels.Info],
			e.Counts[levels.Warning],
			e.Counts[levels.Error],
			e.Counts[levels.Unknown],
			e.Failed,
			e.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("inserting audit record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.BatchAudit, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT recorded_at, endpoint, mode, line_count,
		       info_count, warning_count, error_count, unknown_count,
		       failed_count, duration_ms
		FROM batch_audit
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var entries []models.BatchAudit
	for rows.Next() {
		var (
			e          models.BatchAudit
			recordedAt int64
			durationMS int64
			info       int64
			warning    int64
			errCount   int64
			unknown    int64
		)
		if err := rows.Scan(&recordedAt, &e.Endpoint, &e.Mode, &e.Lines,
			&info, &warning, &errCount, &unknown,
			&e.Failed, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}

		e.Time = time.UnixMilli(recordedAt)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.Counts = levels.Tally{
			levels.Info:    info,
			levels.Warning: warning,
			levels.Error:   errCount,
			levels.Unknown: unknown,
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close stops the writer, flushes pending records, and closes the database.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("audit writer did not drain before deadline")
		}

		err = s.db.Close()
	})
	return err
}
