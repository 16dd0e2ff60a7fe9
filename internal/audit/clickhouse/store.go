// Package clickhouse provides a ClickHouse-backed audit recorder for
// deployments that want the trail queryable at volume.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
	"github.com/Immortalbear27/log_level_api/pkg/models"
)

// Backend is the factory name of this recorder.
const Backend = "clickhouse"

const (
	defaultDialTimeout   = 10 * time.Second
	defaultMaxRetries    = 3
	defaultRetryDelay    = 1 * time.Second
	defaultBatchSize     = 1000
	defaultFlushInterval = 5 * time.Second
	defaultShutdownWait  = 10 * time.Second
	insertRetries        = 3
)

// Config holds ClickHouse recorder configuration.
type Config struct {
	Addr          string
	Database      string
	Username      string
	Password      string
	DialTimeout   time.Duration
	MaxRetries    int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns a config pointed at a local server.
func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:9000",
		Database:      "default",
		Username:      "default",
		Password:      "",
		DialTimeout:   defaultDialTimeout,
		MaxRetries:    defaultMaxRetries,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
	}
}

// row is one audit record shaped for the batch_audit table.
type row struct {
	recordedAt time.Time
	endpoint   string
	mode       string
	lines      uint64
	info       uint64
	warning    uint64
	errCount   uint64
	unknown    uint64
	failed     uint64
	durationMS uint64
}

// Store buffers audit rows in memory and flushes them in batches, by size
// or on an interval, with retried inserts.
type Store struct {
	conn driver.Conn

	mu   sync.Mutex
	rows []row

	batchSize     int
	flushInterval time.Duration

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *slog.Logger
}

// New connects with retries, initializes the schema, and starts the flush
// loop.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := initializeSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := &Store{
		conn:          conn,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}

	s.wg.Add(1)
	go s.flushLoop()

	logger.Info("clickhouse audit recorder ready", "addr", cfg.Addr, "database", cfg.Database)
	return s, nil
}

// connect opens a connection with exponential-backoff retries and verifies
// it with a ping.
func connect(ctx context.Context, cfg Config) (driver.Conn, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}

	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      dialTimeout,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}

	var conn driver.Conn
	var err error
	retryDelay := defaultRetryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = clickhouse.Open(opts)
		if err == nil {
			if err = conn.Ping(ctx); err == nil {
				return conn, nil
			}
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
				retryDelay *= 2
			}
		}
	}

	return nil, fmt.Errorf("connecting to clickhouse after %d attempts: %w", maxRetries, err)
}

// Record buffers one audit record. The write happens on the next flush.
func (s *Store) Record(ctx context.Context, e models.BatchAudit) error {
	r := row{
		recordedAt: e.Time,
		endpoint:   e.Endpoint,
		mode:       e.Mode,
		lines:      uint64(e.Lines),
		info:       uint64(e.Counts[levels.Info]),
		warning:    uint64(e.Counts[levels.Warning]),
		errCount:   uint64(e.Counts[levels.Error]),
		unknown:    uint64(e.Counts[levels.Unknown]),
		failed:     uint64(e.Failed),
		durationMS: uint64(e.Duration.Milliseconds()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, r)
	if len(s.rows) >= s.batchSize {
		return s.flushLocked()
	}
	return nil
}

// Backend identifies the implementation.
func (s *Store) Backend() string { return Backend }

// flushLoop flushes the buffer on an interval until Close.
func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if err := s.flushLocked(); err != nil {
				s.logger.Error("audit flush failed", "error", err)
			}
			s.mu.Unlock()

		case <-s.stopCh:
			return
		}
	}
}

// flushLocked sends the buffered rows. The lock is released during the
// insert so Record keeps accepting rows while the batch is in flight.
func (s *Store) flushLocked() error {
	if len(s.rows) == 0 {
		return nil
	}

	start := time.Now()
	rows := s.rows
	s.rows = nil

	s.mu.Unlock()
	err := s.insertRows(rows)
	s.mu.Lock()

	if err != nil {
		s.logger.Error("failed to flush audit rows", "error", err, "row_count", len(rows))
		return err
	}

	s.logger.Debug("flushed audit rows",
		"row_count", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// insertRows writes one batch with exponential-backoff retries.
func (s *Store) insertRows(rows []row) error {
	var err error
	retryDelay := 100 * time.Millisecond

	for attempt := 1; attempt <= insertRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = s.sendBatch(ctx, rows)
		cancel()

		if err == nil {
			return nil
		}

		if attempt < insertRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	return fmt.Errorf("insert failed after %d attempts: %w", insertRetries, err)
}

func (s *Store) sendBatch(ctx context.Context, rows []row) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO batch_audit")
	if err != nil {
		return err
	}

	for _, r := range rows {
		err = batch.Append(
			r.recordedAt,
			r.endpoint,
			r.mode,
			r.lines,
			r.info,
			r.warning,
			r.errCount,
			r.unknown,
			r.failed,
			r.durationMS,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// Close stops the flush loop, writes what remains, and closes the
// connection.
func (s *Store) Close(ctx context.Context) error {
	var finalErr error

	s.closeOnce.Do(func() {
		close(s.stopCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownWait)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.logger.Warn("audit flush loop did not stop within timeout")
		}

		s.mu.Lock()
		finalErr = s.flushLocked()
		s.mu.Unlock()

		if err := s.conn.Close(); err != nil && finalErr == nil {
			finalErr = err
		}
	})

	return finalErr
}
