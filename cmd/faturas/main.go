package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"faturas/internal/cli"
	apphttp "faturas/internal/http"
	applog "faturas/internal/log"
	"faturas/internal/middleware/ratelimit"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	app, err := cli.NewApp(context.Background(), cfg, logger, cli.Options{})
	if err != nil {
		logger.Error("Failed to initialize application",
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Invoices: app.Invoices,
		Sync:     app.Sync,
		Queue:    app.Backend.Queue,
		Oracle:   app.State,
		Pinger:   app.Backend.Gateway,
		Metrics:  app.Metrics,
		Logger:   logger,
		RateLimit: ratelimit.Config{
			Requests: cfg.RateLimit,
			Window:   cfg.RateWindow,
		},
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := app.Close(ctx); err != nil {
			logger.Error("Application shutdown error", applog.FieldError, err)
		}
	})

	if err := app.Start(ctx); err != nil {
		logger.Error("Failed to start background services", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting faturas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"queue", cfg.QueueBackend,
		applog.FieldPending, app.Backend.Queue.Len())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
