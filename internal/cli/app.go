package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/auth"
	"faturas/internal/backend"
	"faturas/internal/cache"
	"faturas/internal/config"
	"faturas/internal/connectivity"
	applog "faturas/internal/log"
	"faturas/internal/metrics"
	"faturas/internal/services"
)

// amqpDialWait bounds how long startup waits for the broker.
const amqpDialWait = 30 * time.Second

// App is the write path assembled from a config: backend, connectivity,
// cache, the invoice service and the sync processor.
type App struct {
	Config  *config.Config
	Logger  *applog.Logger
	Backend *backend.BackendResult
	State   *connectivity.State
	Prober  *connectivity.Prober
	Cache   *cache.QueryCache
	Metrics *metrics.Metrics

	Invoices *services.InvoiceService
	Sync     *services.SyncProcessor

	publisher    *amqp.Client
	cacheManager *cache.Manager
}

// Options tweak NewApp for one-shot tools.
type Options struct {
	// WithoutPublisher skips the AMQP connection even when configured.
	WithoutPublisher bool
}

// NewApp opens the backend and wires the services. Nothing runs until
// Start. An unreachable broker is logged and the app runs without change
// events.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts Options) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	app := &App{
		Config:       cfg,
		Logger:       logger,
		Backend:      res,
		State:        connectivity.NewState(false),
		Cache:        cache.NewQueryCache(cfg.CacheMaxEntries, cfg.CacheTTL),
		Metrics:      metrics.New(),
		cacheManager: cache.NewManager(logger),
	}
	app.Prober = connectivity.NewProber(res.Gateway, app.State, cfg.ProbeInterval, cfg.GatewayTimeout, logger)
	app.cacheManager.Register(app.Cache)

	deps := services.Deps{
		Gateway:  res.Gateway,
		Queue:    res.Queue,
		Cache:    app.Cache,
		Oracle:   app.State,
		Sessions: auth.NewStatic(cfg.UserID),
		Offline:  app.Prober,
		Metrics:  app.Metrics,
		Logger:   logger,
		Timeout:  cfg.GatewayTimeout,
	}

	if cfg.AMQPURL != "" && !opts.WithoutPublisher {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpDialWait, logger)
		if err != nil {
			logger.Warn("Change events disabled, broker unreachable",
				applog.FieldErrorType, applog.ErrorTypeNetwork,
				applog.FieldError, err)
		} else {
			app.publisher = client
			deps.Publisher = client
		}
	}

	app.Invoices = services.NewInvoiceService(deps)
	app.Sync = services.NewSyncProcessor(deps, services.SyncProcessorConfig{
		Interval: cfg.SyncInterval,
		Backoff:  cfg.SyncBackoff,
	})
	app.Metrics.SetPending(res.Queue.Len())
	return app, nil
}

// Start probes the remote store once, then runs the prober, the sync
// processor and cache cleanup in the background.
func (a *App) Start(ctx context.Context) error {
	a.Metrics.SetOnline(a.Prober.Check(ctx))
	if err := a.Prober.Start(ctx); err != nil {
		return fmt.Errorf("start prober: %w", err)
	}
	if err := a.Sync.Start(ctx); err != nil {
		return fmt.Errorf("start sync processor: %w", err)
	}
	interval := a.Config.CacheTTL
	if interval <= 0 {
		interval = time.Minute
	}
	a.cacheManager.StartCleanup(interval)
	return nil
}

// Close stops the background loops and releases the backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, a.Sync.Stop(ctx), a.Prober.Stop(ctx))
	a.cacheManager.Stop()
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.Backend.Cleanup())
	return errors.Join(errs...)
}
