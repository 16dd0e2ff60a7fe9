// Package main is the entry point for the log level API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Immortalbear27/log_level_api/internal/api"
	"github.com/Immortalbear27/log_level_api/internal/audit"
	"github.com/Immortalbear27/log_level_api/internal/cache"
	"github.com/Immortalbear27/log_level_api/internal/config"
	"github.com/Immortalbear27/log_level_api/internal/dispatch"
	"github.com/Immortalbear27/log_level_api/internal/ratelimit"
	"github.com/Immortalbear27/log_level_api/internal/stats"
)

func main() {
	// When re-executed by the process pool this binary is a hash worker,
	// not a server. Decide before touching flags or config.
	if os.Getenv(dispatch.WorkerEnv) == "1" {
		if err := dispatch.RunHashWorker(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = getEnv("CONFIG_PATH", config.DefaultPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	log.Println("Starting log level API...")

	logger := slog.Default()
	ctx := context.Background()

	// Cache wiring: an unreachable redis degrades to the noop store, a
	// misconfigured backend is fatal.
	store, err := cache.New(ctx, cache.Config{
		Backend:       cfg.Cache.Backend,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	}, logger)
	if err != nil {
		log.Fatalf("Cache error: %v", err)
	}

	recorder, err := audit.New(ctx, audit.Config{
		Backend:        cfg.Audit.Backend,
		SQLitePath:     cfg.Audit.SQLitePath,
		ClickHouseAddr: cfg.Audit.ClickHouseAddr,
	}, logger)
	if err != nil {
		log.Fatalf("Audit error: %v", err)
	}

	limiter := ratelimit.New(store, ratelimit.Config{
		Limit:      cfg.RateLimit.Limit,
		Window:     cfg.RateLimit.Window(),
		MaxWait:    cfg.RateLimit.MaxWait(),
		RetryEvery: cfg.RateLimit.RetryEvery(),
	}, logger)

	workers, err := dispatch.NewWorkerPool(cfg.Dispatch.ThreadWorkers)
	if err != nil {
		log.Fatalf("Worker pool error: %v", err)
	}

	procs, err := dispatch.NewProcessPool(cfg.Dispatch.ProcWorkers, cfg.Dispatch.HashRounds, logger)
	if err != nil {
		log.Fatalf("Process pool error: %v", err)
	}

	apiServer := api.NewServer(cfg.Server.ListenAddr, api.Deps{
		Store:    store,
		Recorder: recorder,
		Limiter:  limiter,
		Stats:    stats.New(),
		Bounded:  dispatch.NewBounded(cfg.Dispatch.MaxConcurrency),
		Workers:  workers,
		Procs:    procs,
		CacheTTL: cfg.Cache.TTL(),
		Logger:   logger,
	})

	log.Printf("Cache backend: %s", store.Backend())
	log.Printf("Audit backend: %s", recorder.Backend())
	log.Printf("Rate limit: %d requests per %s per endpoint", cfg.RateLimit.Limit, cfg.RateLimit.Window())
	log.Printf("Dispatch: %d gated goroutines, %d pool workers, %d hash processes",
		cfg.Dispatch.MaxConcurrency, cfg.Dispatch.ThreadWorkers, cfg.Dispatch.ProcWorkers)

	// Start pprof server for profiling (separate port)
	pprofAddr := getEnv("PPROF_ADDR", "localhost:6060")
	go func() {
		log.Printf("Starting pprof server on http://%s/debug/pprof", pprofAddr)
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()

	errChan := make(chan error, 1)

	go func() {
		log.Printf("Starting REST API server on %s", cfg.Server.ListenAddr)
		if err := apiServer.Start(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	log.Println("API endpoints:")
	log.Printf("  - Parse: http://%s/parse", cfg.Server.ListenAddr)
	log.Printf("  - Batch: http://%s/batch", cfg.Server.ListenAddr)
	log.Printf("  - Batch via worker pool: http://%s/batch_threads", cfg.Server.ListenAddr)
	log.Printf("  - Hash via process pool: http://%s/cpu_processes", cfg.Server.ListenAddr)
	log.Printf("  - Stats: http://%s/stats", cfg.Server.ListenAddr)
	log.Printf("  - Health: http://%s/health", cfg.Server.ListenAddr)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down...", sig)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Shutting down server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	workers.Close()

	log.Println("Closing audit recorder...")
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Printf("Error closing audit recorder: %v", err)
	}

	log.Println("Closing cache...")
	if err := store.Close(); err != nil {
		log.Printf("Error closing cache: %v", err)
	}

	log.Println("Shutdown complete")
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
