// Package main provides the scheduler that invokes the outbox sync batch and cleanup periodically.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jnst/booking-sync/internal/app"
	"github.com/jnst/booking-sync/internal/config"
	"github.com/jnst/booking-sync/internal/logger"
	"github.com/jnst/booking-sync/internal/service"
)

const (
	signalBufferSize = 1
	exitCode         = 1
)

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping scheduler")
		cancel()
	}()

	return ctx, cancel
}

// runBatch detaches the batch from ctx; cancellation only stops the loop between batches.
func runBatch(ctx context.Context, syncService service.SyncService) {
	summary, err := syncService.RunBatch(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("error running sync batch", slog.String("error", err.Error()))
		return
	}

	if summary.Total > 0 {
		slog.Info("sync batch finished",
			slog.Int("total", summary.Total),
			slog.Int("success", summary.Success),
			slog.Int("failure", summary.Failure),
		)
	}
}

func runCleanup(ctx context.Context, cleanupService service.CleanupService) {
	if _, err := cleanupService.Cleanup(context.WithoutCancel(ctx)); err != nil {
		slog.Error("error cleaning up outbox", slog.String("error", err.Error()))
	}
}

func runSchedulerLoop(
	ctx context.Context,
	syncService service.SyncService,
	cleanupService service.CleanupService,
	syncInterval, cleanupInterval time.Duration,
) {
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-syncTicker.C:
			runBatch(ctx, syncService)
		case <-cleanupTicker.C:
			runCleanup(ctx, cleanupService)
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	// ログ設定
	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	application, err := app.New(ctx, cfg, loggerInstance)
	if err != nil {
		slog.Error("failed to initialize sync engine", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer application.Close()

	slog.Info("starting scheduler",
		slog.String("service", "scheduler"),
		slog.Duration("sync_interval", cfg.SchedulerInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	runSchedulerLoop(ctx, application.Sync, application.Cleanup, cfg.SchedulerInterval, cfg.CleanupInterval)
}
