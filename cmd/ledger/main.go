package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("ledger")
	cfg := cli.LoadAndValidateConfig(logger)

	app, err := cli.Bootstrap(context.Background(), cfg, logger, cli.Options{})
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}

	deps := apphttp.Deps{
		Config:   cfg,
		Logger:   logger,
		Metrics:  app.Metrics,
		Location: app.Location,
		Store:    app.Store,
		Gate:     app.Gate,
		Sessions: app.Sessions,
		Projects: app.Projects,
		Reports:  app.Reports,
	}
	if app.AMQP != nil {
		deps.Broker = app.AMQP
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, deps)
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		app.Close()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	janitor := worker.NewSessionJanitor(app.Store, logger.WithComponent(log.ComponentScheduler))
	if _, err := janitor.Schedule(ctx, cfg.SessionPurgeSchedule); err != nil {
		logger.Warn("Session purge schedule disabled", log.FieldError, err, "schedule", cfg.SessionPurgeSchedule)
	}

	logger.Info("Starting ledger server", "port", cfg.Port, "backend", cfg.DataBackend, "blobs", cfg.BlobBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
