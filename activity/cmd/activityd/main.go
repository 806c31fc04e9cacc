package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/app"
	"github.com/pbi-manager/activity-sync/activity/internal/handlers"
	"github.com/pbi-manager/activity-sync/activity/internal/jobs"
	"github.com/pbi-manager/activity-sync/activity/internal/scheduler"
	"github.com/pbi-manager/activity-sync/activity/internal/server"
	"github.com/pbi-manager/activity-sync/common/config"
	"github.com/pbi-manager/activity-sync/common/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("activityd"))
	logging.SetDefault(logger)

	slog.Info("Starting activity sync service",
		slog.Int("port", cfg.Server.Port),
		slog.String("database", cfg.Database.Type),
		slog.String("jobs_backend", cfg.Jobs.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize", logging.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.EnsureExportDir(); err != nil {
		slog.Error("Failed to prepare export directory", logging.Error(err))
		os.Exit(1)
	}

	queue, err := a.NewQueue()
	if err != nil {
		slog.Error("Failed to create task queue", logging.Error(err))
		os.Exit(1)
	}
	if err := queue.Start(ctx); err != nil {
		slog.Error("Failed to start task queue", logging.Error(err))
		os.Exit(1)
	}

	sched := scheduler.NewScheduler(queue, schedule(cfg), logger.Logger)
	sched.Start(ctx)

	h := handlers.New(a.Service, queue, cfg.Sync.TaskName, logger.Logger)
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(h, logger.Logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("activity sync service listening", slog.String("addr", listenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", logging.Error(err))
	}

	if err := queue.Close(); err != nil {
		slog.Error("task queue shutdown error", logging.Error(err))
	}
}

// schedule lists the recurring tasks enabled by cfg.
func schedule(cfg *config.Config) []scheduler.Entry {
	var entries []scheduler.Entry
	if cfg.Sync.Enabled {
		entries = append(entries, scheduler.Entry{Task: jobs.TaskSync, Interval: cfg.Sync.Interval})
	}
	if cfg.Retention.Enabled {
		entries = append(entries,
			scheduler.Entry{Task: jobs.TaskSweepEvents, Interval: cfg.Retention.Interval},
			scheduler.Entry{Task: jobs.TaskSweepExports, Interval: cfg.Retention.Interval},
		)
	}
	return entries
}
