package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/core/modules" // Register built-in module schemas
	"github.com/JonMunkholm/sheetimport/internal/database"
	"github.com/JonMunkholm/sheetimport/internal/importer"
	"github.com/JonMunkholm/sheetimport/internal/jobs"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if cfg.Schema.File != "" {
		n, err := modules.RegisterFile(cfg.Schema.File)
		if err != nil {
			slog.Error("failed to load schema file", "file", cfg.Schema.File, "error", err)
			os.Exit(1)
		}
		slog.Info("schema file loaded", "file", cfg.Schema.File, "modules", n)
	}
	slog.Info("modules registered", "count", core.ModuleCount())

	ctx := context.Background()

	// Storage: Postgres when configured, otherwise in-memory.
	var (
		store       jobs.Store
		creator     jobs.Creator
		healthCheck func(context.Context) error
	)
	if cfg.Database.Enabled() {
		if cfg.Database.Migrate {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				slog.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store = database.NewJobStore(pool)
		creator = database.NewRecordWriter(pool)
		healthCheck = pool.Ping
	} else {
		slog.Warn("DATABASE_URL not set, jobs and records are kept in memory")
		store = jobs.NewMemoryStore()
		creator = jobs.NewMemoryCreator()
	}

	runner := jobs.NewRunner(store, creator,
		jobs.WithJobTimeout(cfg.Worker.JobTimeout),
		jobs.WithRowRetries(cfg.Worker.RowRetries),
		jobs.WithRetryBackoff(cfg.Worker.RetryBackoff),
	)

	// Dispatch: asynq when Redis is configured, otherwise a local pool.
	var (
		dispatcher jobs.Dispatcher
		stopWorker func(context.Context)
	)
	if cfg.Queue.Enabled() {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		}
		qd := jobs.NewQueueDispatcher(redisOpt, cfg.Queue.Name, runner.JobTimeout())
		worker := jobs.NewQueueWorker(redisOpt, runner, jobs.QueueWorkerConfig{
			Concurrency: cfg.Worker.Concurrency,
			Queue:       cfg.Queue.Name,
		})
		if err := worker.Start(); err != nil {
			slog.Error("failed to start queue worker", "error", err)
			os.Exit(1)
		}
		dispatcher = qd
		stopWorker = func(context.Context) {
			worker.Shutdown()
			if err := qd.Close(); err != nil {
				slog.Warn("close queue client", "error", err)
			}
		}
		slog.Info("dispatching through redis queue", "addr", cfg.Queue.RedisAddr, "queue", cfg.Queue.Name)
	} else {
		ld := jobs.NewLocalDispatcher(runner, cfg.Worker.Concurrency)
		dispatcher = ld
		stopWorker = func(ctx context.Context) {
			if err := ld.Shutdown(ctx); err != nil {
				slog.Warn("workers did not stop in time", "error", err)
			}
		}
		slog.Info("dispatching to local worker pool", "concurrency", cfg.Worker.Concurrency)
	}

	service := importer.NewService(store, dispatcher,
		importer.WithLimits(importer.Limits{
			MaxFileSize: cfg.Import.MaxFileSize,
			MaxRows:     cfg.Import.MaxRows,
		}),
		importer.WithPreviewPool(jobs.NewPool(cfg.Import.MaxConcurrent), cfg.Import.MaxWaitTime),
	)

	// Background sweeper for lost dispatches and dead workers
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	sweeper := jobs.NewSweeper(store, dispatcher, jobs.SweeperConfig{
		Interval:   cfg.Worker.SweepInterval,
		StaleAfter: cfg.Worker.StaleAfter,
		JobTimeout: runner.JobTimeout(),
	})
	go sweeper.Start(jobCtx)

	var opts []web.Option
	if healthCheck != nil {
		opts = append(opts, web.WithHealthCheck(healthCheck))
	}
	server := web.NewServer(service, cfg, opts...)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		stopWorker(shutdownCtx)
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
