package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storesync/internal/config"
	http_controllers "github.com/mrlokans/storesync/internal/http"
	"github.com/mrlokans/storesync/internal/logging"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs srv until SIGINT or SIGTERM, then shuts it down within the
// configured timeout after calling onShutdown.
func Serve(router *gin.Engine, cfg *config.Config, app *App, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.Log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// kill (no param) default sends syscall.SIGTERM, kill -2 is syscall.SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		app.Log.Info().Str("signal", sig.String()).Dur("timeout", timeout).Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests before the background components go away
	if err := srv.Shutdown(ctx); err != nil {
		app.Log.Error().Err(err).Msg("server shutdown")
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	app.Log.Info().Msg("server exiting")
	return nil
}

// Run starts the HTTP server with every background component and blocks
// until shutdown.
func Run(cfg *config.Config, version string) error {
	log := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	log.Info().Str("version", version).Msg("starting storesync")

	app, err := NewApp(cfg, log, AppOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	// Jobs left non-terminal by a previous process can never finish
	if _, err := app.Orchestrator.Recover(context.Background()); err != nil {
		return err
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	go app.Cache.Start(bgCtx)
	go app.Tasks.Start(bgCtx)

	if cfg.Schedule.Enabled {
		if err := app.Scheduler.Start(bgCtx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Info().Msg("scheduler disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Sync:               app.Orchestrator,
		Jobs:               app.Jobs,
		Events:             app.Events,
		Checkpoints:        app.Checkpoints,
		Records:            app.Records,
		Cache:              app.Cache,
		TaskClient:         app.Tasks,
		EventRetentionDays: cfg.Tasks.EventRetentionDays,
		HealthChecks:       app.HealthChecks(),
		MetricsHandler:     app.MetricsHandler(),
		HTTPMetrics:        app.HTTPMetrics,
		Version:            version,
		Logger:             logging.Component(log, "http"),
	})

	return Serve(router, cfg, app, func(ctx context.Context) {
		app.Scheduler.Stop()

		// Loops stop at their next batch boundary and fail as interrupted
		app.CancelRuns()
		app.WaitRuns()

		stopBackground()
		if !app.Tasks.Stop(ctx) {
			log.Warn().Msg("task queue did not drain before the shutdown deadline")
		}
		app.Cache.Stop()
	})
}
