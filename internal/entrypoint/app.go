// Package entrypoint wires the sync engine from configuration and owns the
// lifecycles of its background components.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/config"
	"github.com/mrlokans/storesync/internal/database"
	"github.com/mrlokans/storesync/internal/database/checkpoints"
	"github.com/mrlokans/storesync/internal/database/events"
	"github.com/mrlokans/storesync/internal/database/jobs"
	"github.com/mrlokans/storesync/internal/database/records"
	"github.com/mrlokans/storesync/internal/entities"
	http_controllers "github.com/mrlokans/storesync/internal/http"
	"github.com/mrlokans/storesync/internal/logging"
	"github.com/mrlokans/storesync/internal/mirror"
	"github.com/mrlokans/storesync/internal/observability"
	"github.com/mrlokans/storesync/internal/persister"
	"github.com/mrlokans/storesync/internal/scheduler"
	"github.com/mrlokans/storesync/internal/shopify"
	"github.com/mrlokans/storesync/internal/syncer"
	"github.com/mrlokans/storesync/internal/tasks"
)

// App holds every constructed component. Build it with NewApp and release
// it with Close.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	DB          *database.Database
	Mirror      *mirror.Store
	Jobs        *jobs.Repository
	Checkpoints *checkpoints.Repository
	Events      *events.Repository
	Records     *records.Repository

	Cache        *cache.Cache
	Metrics      *observability.Provider
	SyncMetrics  *observability.SyncMetrics
	HTTPMetrics  *observability.HTTPMetrics
	Orchestrator *syncer.Orchestrator
	Tasks        *tasks.Client
	Scheduler    *scheduler.SyncScheduler

	pool       *syncer.PoolDispatcher
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// AppOptions adjust wiring for one-shot commands.
type AppOptions struct {
	// InProcess forces sync runs onto the in-process pool regardless of the
	// configured dispatch mode.
	InProcess bool
	// WithoutUpstream skips the Shopify client for commands that only read
	// local state.
	WithoutUpstream bool
}

// NewApp opens the stores and constructs the orchestrator with its
// dispatcher. Nothing is started.
func NewApp(cfg *config.Config, log zerolog.Logger, opts AppOptions) (_ *App, err error) {
	app := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if app.DB, err = database.NewDatabase(cfg.Database.Path, logging.Component(log, "database")); err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if app.Mirror, err = mirror.Open(cfg.Mirror.Path, logging.Component(log, "mirror")); err != nil {
		return nil, fmt.Errorf("initialize mirror store: %w", err)
	}

	app.Jobs = jobs.NewRepository(app.DB.DB)
	app.Checkpoints = checkpoints.NewRepository(app.DB.DB)
	app.Events = events.NewRepository(app.DB.DB)
	app.Records = records.NewRepository(app.DB.DB)

	app.Cache = cache.New(cache.Config{
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, logging.Component(log, "cache"))

	if err = app.initMetrics(); err != nil {
		return nil, err
	}

	var fetcher syncer.Fetcher
	if !opts.WithoutUpstream {
		client, clientErr := shopify.NewClient(shopify.ClientConfig{
			ShopDomain:  cfg.Shopify.ShopDomain,
			APIVersion:  cfg.Shopify.APIVersion,
			AccessToken: cfg.Shopify.AccessToken,
			Endpoint:    cfg.Shopify.Endpoint,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("initialize shopify client: %w", clientErr)
		}
		fetcher = shopify.NewFetcher(client, shopify.FetcherConfig{
			BaseDelay:      cfg.Shopify.RetryBaseDelay,
			MaxDelay:       cfg.Shopify.MaxRetryDelay,
			AttemptTimeout: cfg.Shopify.RequestTimeout,
		}, logging.Component(log, "fetcher"))
	}

	app.Orchestrator = syncer.New(syncer.Deps{
		Jobs:        app.Jobs,
		Checkpoints: app.Checkpoints,
		Events:      app.Events,
		Fetcher:     fetcher,
		Persister: persister.New(app.Records, app.Mirror, logging.Component(log, "persister"),
			persister.WithConcurrency(cfg.Sync.WriteConcurrency)),
		Cache:   app.Cache,
		Metrics: app.SyncMetrics,
	}, syncer.Options{
		PageDelay:      cfg.Sync.PageDelay,
		EstimatedTotal: cfg.Sync.EstimatedTotal,
		CountTTL:       cfg.Cache.CountTTL,
	}, logging.Component(log, "syncer"))

	if app.Tasks, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
		Workers:         cfg.Tasks.Workers,
		ReleaseAfter:    cfg.Tasks.ReleaseAfter,
		CleanupInterval: cfg.Tasks.CleanupInterval,
	}, logging.Component(log, "tasks")); err != nil {
		return nil, fmt.Errorf("initialize task queue: %w", err)
	}
	app.Tasks.Register(
		tasks.NewSyncRunQueue(app.Orchestrator),
		tasks.NewCleanupSyncEventsQueue(app.Events, logging.Component(log, "tasks")),
	)

	app.runCtx, app.cancelRuns = context.WithCancel(context.Background())
	if cfg.Sync.Dispatch == config.DispatchQueue && !opts.InProcess {
		app.Orchestrator.SetDispatcher(tasks.NewQueueDispatcher(app.Tasks))
		log.Info().Msg("sync runs dispatched through the task queue")
	} else {
		app.pool = syncer.NewPoolDispatcher(app.runCtx, app.Orchestrator.Run, cfg.Sync.MaxConcurrent, logging.Component(log, "dispatcher"))
		app.Orchestrator.SetDispatcher(app.pool)
	}

	app.Scheduler = scheduler.NewSyncScheduler(app.Orchestrator, app.enqueueEventCleanup, scheduler.Config{
		Schedules: map[entities.ResourceType]string{
			entities.ResourceOrders:   cfg.Schedule.Orders,
			entities.ResourceProducts: cfg.Schedule.Products,
		},
		EventCleanup: cfg.Schedule.EventCleanup,
	}, log)

	return app, nil
}

func (a *App) initMetrics() error {
	if !a.Config.Metrics.Enabled {
		return nil
	}

	provider, err := observability.NewProvider()
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}
	a.Metrics = provider
	otel.SetMeterProvider(provider.MeterProvider())

	meter := provider.Meter()
	if a.SyncMetrics, err = observability.NewSyncMetrics(meter); err != nil {
		return fmt.Errorf("register sync metrics: %w", err)
	}
	if a.HTTPMetrics, err = observability.NewHTTPMetrics(meter); err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	if err = observability.RegisterCacheMetrics(meter, "read", a.Cache); err != nil {
		return fmt.Errorf("register cache metrics: %w", err)
	}
	return nil
}

func (a *App) enqueueEventCleanup(_ context.Context) error {
	_, err := a.Tasks.Add(tasks.CleanupSyncEventsTask{RetentionDays: a.Config.Tasks.EventRetentionDays}).Save()
	return err
}

// HealthChecks lists the dependencies reported by /health.
func (a *App) HealthChecks() map[string]http_controllers.HealthCheck {
	return map[string]http_controllers.HealthCheck{
		"database":   func(context.Context) error { return a.DB.Ping() },
		"mirror":     a.Mirror.Ping,
		"task_queue": a.Tasks.Ping,
	}
}

// MetricsHandler returns the scrape handler or nil when metrics are off.
func (a *App) MetricsHandler() http.Handler {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics.Handler()
}

// CancelRuns interrupts in-process sync loops at their next batch boundary.
func (a *App) CancelRuns() {
	if a.cancelRuns != nil {
		a.cancelRuns()
	}
}

// WaitRuns blocks until every in-process sync run returned.
func (a *App) WaitRuns() {
	if a.pool != nil {
		a.pool.Wait()
	}
}

// Close releases the stores. Call it after background components stopped.
func (a *App) Close() {
	a.CancelRuns()

	var errs []error
	if a.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.Metrics.Shutdown(ctx))
		cancel()
	}
	if a.Tasks != nil {
		errs = append(errs, a.Tasks.Close())
	}
	if a.Mirror != nil {
		errs = append(errs, a.Mirror.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Log.Error().Err(err).Msg("error releasing resources")
	}
}
