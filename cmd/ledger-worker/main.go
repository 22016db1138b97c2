package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

// summaryConcurrency bounds parallel generations during the startup warm-up.
const summaryConcurrency = 4

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("ledger-worker")
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker", log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	app, err := cli.Bootstrap(context.Background(), cfg, logger, cli.Options{RequireAMQP: true})
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, warmed summaries stay in this process only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := app.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	janitor := worker.NewSessionJanitor(app.Store, logger.WithComponent(log.ComponentScheduler))
	if _, err := janitor.Run(ctx); err != nil {
		logger.Warn("Initial session purge failed", log.FieldError, err)
	}
	if _, err := janitor.Schedule(ctx, cfg.SessionPurgeSchedule); err != nil {
		logger.Error("Failed to schedule session purge", log.FieldError, err, "schedule", cfg.SessionPurgeSchedule)
		app.Close()
		os.Exit(1)
	}

	summaries := worker.NewSummaryWorker(app.Store, app.Summarizer, summaryConcurrency, logger.WithComponent(log.ComponentWorker))
	go func() {
		n, err := summaries.WarmAll(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Summary warm-up incomplete", log.FieldError, err, "warmed", n)
			return
		}
		logger.Info("Summary warm-up finished", "warmed", n)
	}()

	logger.Info("Consuming project events", "queue", cfg.AMQPQueue)
	if err := app.AMQP.Consume(ctx, app.Metrics.InstrumentHandler(summaries.Handle)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumer stopped", log.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
