// Package api provides the HTTP surface for classifying log lines.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Immortalbear27/log_level_api/internal/analyzer"
	"github.com/Immortalbear27/log_level_api/internal/audit"
	"github.com/Immortalbear27/log_level_api/internal/cache"
	"github.com/Immortalbear27/log_level_api/internal/dispatch"
	"github.com/Immortalbear27/log_level_api/internal/parser"
	"github.com/Immortalbear27/log_level_api/internal/ratelimit"
	"github.com/Immortalbear27/log_level_api/internal/stats"
	"github.com/Immortalbear27/log_level_api/pkg/levels"
	"github.com/Immortalbear27/log_level_api/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// hashPreview is how many hashes a /cpu_processes response carries; the
// rest are summarized by the total count.
const hashPreview = 3

// Deps carries the wired dependencies for the server.
type Deps struct {
	Store    cache.Store
	Recorder audit.Recorder
	Limiter  *ratelimit.Limiter
	Stats    *stats.Aggregator
	Bounded  *dispatch.Bounded
	Workers  *dispatch.WorkerPool
	Procs    *dispatch.ProcessPool
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Server is the REST API server.
type Server struct {
	store      cache.Store
	recorder   audit.Recorder
	limiter    *ratelimit.Limiter
	stats      *stats.Aggregator
	bounded    *dispatch.Bounded
	workers    *dispatch.WorkerPool
	procs      *dispatch.ProcessPool
	plain      *analyzer.Analyzer
	structured *analyzer.Analyzer
	logger     *slog.Logger
	router     *chi.Mux
	server     *http.Server
}

// strategy is the shape shared by the goroutine and worker-pool batch
// dispatchers.
type strategy func(ctx context.Context, lines []string, op dispatch.Op) []dispatch.Outcome

type parseRequest struct {
	Mode string `json:"mode"`
	Line string `json:"line"`
}

type batchRequest struct {
	Mode  string   `json:"mode"`
	Lines []string `json:"lines"`
}

type hashRequest struct {
	Lines []string `json:"lines"`
}

type batchResponse struct {
	Counts levels.Tally `json:"counts"`
	Failed int          `json:"failed,omitempty"`
}

type hashResponse struct {
	Hashes []string `json:"hashes"`
	Total  int      `json:"total"`
}

type statsResponse struct {
	stats.Snapshot
	Cache cache.Stats `json:"cache"`
}

// NewServer creates a new API server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Stats == nil {
		deps.Stats = stats.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NewNop()
	}

	s := &Server{
		store:      deps.Store,
		recorder:   deps.Recorder,
		limiter:    deps.Limiter,
		stats:      deps.Stats,
		bounded:    deps.Bounded,
		workers:    deps.Workers,
		procs:      deps.Procs,
		plain:      analyzer.New(parser.NewPlainParser(), deps.Store, deps.CacheTTL, deps.Logger),
		structured: analyzer.New(parser.NewJSONParser(), deps.Store, deps.CacheTTL, deps.Logger),
		logger:     deps.Logger,
		router:     chi.NewRouter(),
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Post("/parse", s.handleParse)

	// Batch endpoints share the fixed-window limiter, one window per path.
	limited := ratelimit.Middleware(s.limiter, func(r *http.Request) {
		s.stats.RecordRateLimited()
		s.logger.Warn("rate limited", "path", r.URL.Path)
	})
	s.router.Group(func(r chi.Router) {
		r.Use(limited)
		r.Post("/batch", s.handleBatch)
		r.Post("/batch_threads", s.handleBatchThreads)
		r.Post("/cpu_processes", s.handleCPUProcesses)
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	return s
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// analyzerFor picks the analyzer matching the request mode. Anything that
// is not "plain" gets the structured parser.
func (s *Server) analyzerFor(mode string) *analyzer.Analyzer {
	if mode == parser.ModePlain {
		return s.plain
	}
	return s.structured
}

// handleRoot returns a static pointer to the useful endpoints.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Log level analyzer. Health at /health, stats at /stats.",
	})
}

// handleParse classifies a single line. Not rate-limited.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	level, err := s.analyzerFor(req.Mode).ProcessLine(r.Context(), req.Line)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.stats.RecordLine(level)
	s.respondJSON(w, http.StatusOK, map[string]string{"level": string(level)})
}

// handleBatch classifies a batch with one gated goroutine per line.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	s.runBatch(w, r, s.bounded.Map)
}

// handleBatchThreads classifies a batch on the shared worker pool.
func (s *Server) handleBatchThreads(w http.ResponseWriter, r *http.Request) {
	s.runBatch(w, r, s.workers.Map)
}

// runBatch decodes a batch request, fans the lines out on the given
// strategy and folds the outcomes into per-level counts. A line that
// faults is reported in the failed count, never as a batch error.
func (s *Server) runBatch(w http.ResponseWriter, r *http.Request, dispatchFn strategy) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start := time.Now()
	an := s.analyzerFor(req.Mode)
	outcomes := dispatchFn(r.Context(), req.Lines, an.ProcessLine)
	tally, failed := dispatch.Collect(outcomes)

	s.stats.RecordBatch(tally, failed)
	s.recordAudit(r, req.Mode, len(req.Lines), tally, failed, time.Since(start))

	s.respondJSON(w, http.StatusOK, batchResponse{Counts: tally, Failed: failed})
}

// handleCPUProcesses runs the chained-hash op across child processes.
// Unlike classification faults, a dead worker fails the whole batch.
func (s *Server) handleCPUProcesses(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start := time.Now()
	hashes, err := s.procs.Hash(r.Context(), req.Lines)
	if err != nil {
		s.logger.Error("hash batch failed", "error", err, "lines", len(req.Lines))
		s.respondError(w, http.StatusInternalServerError, "hash workers failed")
		return
	}

	s.stats.RecordHashBatch(len(req.Lines))
	s.recordAudit(r, "", len(req.Lines), nil, 0, time.Since(start))

	total := len(hashes)
	if len(hashes) > hashPreview {
		hashes = hashes[:hashPreview]
	}
	s.respondJSON(w, http.StatusOK, hashResponse{Hashes: hashes, Total: total})
}

// handleStats returns the process aggregator merged with cache counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, statsResponse{
		Snapshot: s.stats.Snapshot(),
		Cache:    s.store.Stats(),
	})
}

// recordAudit hands one batch record to the recorder. Auditing is
// best-effort; failures are logged and the response is unaffected.
func (s *Server) recordAudit(r *http.Request, mode string, lines int, counts levels.Tally, failed int, took time.Duration) {
	entry := models.BatchAudit{
		Time:     time.Now(),
		Endpoint: r.URL.Path,
		Mode:     mode,
		Lines:    lines,
		Counts:   counts,
		Failed:   failed,
		Duration: took,
	}
	if err := s.recorder.Record(r.Context(), entry); err != nil {
		s.logger.Warn("audit record failed", "error", err)
	}
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
