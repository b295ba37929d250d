package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"despesas/internal/amqp"
	"despesas/internal/config"
	applog "despesas/internal/log"
	"despesas/internal/storage"
	"despesas/internal/worker"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		applog.Default(applog.ComponentWorker).Warn("Failed to load .env", applog.FieldError, err)
	}

	cfg := config.Load()
	logger := applog.New(applog.Config{Level: applog.ParseLevel(cfg.LogLevel), Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting despesas-worker", applog.FieldOperation, applog.OpStartup)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	// The worker reads the snapshot the server writes, so it always uses SQLite.
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	w := worker.NewReportWorker(store, worker.WithLogger(logger))

	// Catch up on anything changed while the worker was down.
	if _, err := w.Refresh(ctx); err != nil {
		logger.Error("Startup refresh failed", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeLedgerChanges(gctx, w.HandleLedgerChange)
	})
	g.Go(func() error {
		return w.RunPeriodic(gctx, cfg.ReportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
