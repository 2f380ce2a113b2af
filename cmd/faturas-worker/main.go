package main

import (
	"context"
	"errors"
	"os"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/backend"
	"faturas/internal/cli"
	"faturas/internal/core"
	applog "faturas/internal/log"
	gsheet "faturas/internal/sheets/google"
	"faturas/internal/worker"
)

// catchUpInterval re-exports the current month in case change events were
// lost while the worker was down.
const catchUpInterval = time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed",
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting faturas-worker")

	setupCtx := context.Background()

	// The worker reads the remote store only; it never replays the queue.
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	bcfg.Queue = backend.MemoryQueue
	res, err := backend.NewFactory(logger).CreateBackend(setupCtx, bcfg)
	if err != nil {
		logger.Error("Failed to open backend", applog.FieldError, err)
		os.Exit(1)
	}

	sheetsClient, err := gsheet.New(setupCtx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpConn, err := amqp.NewClient(setupCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 2*time.Minute, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client",
			applog.FieldErrorType, applog.ErrorTypeNetwork,
			applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpConn.Close(); err != nil {
			logger.Error("Failed to close AMQP connection", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close backend", applog.FieldError, err)
		}
	})

	exporter := worker.NewExportWorker(res.Gateway, sheetsClient, logger)

	if cfg.UserID != "" {
		go catchUp(ctx, exporter, cfg.UserID, logger)
	}

	if err := amqpConn.ConsumeInvoicesChanged(ctx, exporter.HandleInvoicesChanged); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}

// catchUp exports the current month at startup and then every
// catchUpInterval.
func catchUp(ctx context.Context, exporter *worker.ExportWorker, owner string, logger *applog.Logger) {
	ticker := time.NewTicker(catchUpInterval)
	defer ticker.Stop()
	for {
		if _, err := exporter.ExportMonth(ctx, owner, core.MonthOf(time.Now())); err != nil && ctx.Err() == nil {
			logger.Warn("Catch-up export failed", applog.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
