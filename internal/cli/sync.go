package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/storesync/internal/config"
	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/entrypoint"
	"github.com/mrlokans/storesync/internal/logging"
)

type syncOptions struct {
	batchSize     int
	incremental   bool
	exactProgress bool
	updatedAfter  string
	updatedBefore string
}

func (o syncOptions) jobConfig() (entities.JobConfig, error) {
	cfg := entities.JobConfig{
		BatchSize:     o.batchSize,
		Incremental:   o.incremental,
		ExactProgress: o.exactProgress,
	}
	var err error
	if cfg.UpdatedAfter, err = parseTimeFlag("updated-after", o.updatedAfter); err != nil {
		return cfg, err
	}
	if cfg.UpdatedBefore, err = parseTimeFlag("updated-before", o.updatedBefore); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("--%s must be RFC3339: %w", name, err)
	}
	return &t, nil
}

func newSyncCommand() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync <orders|products>",
		Short: "Run a sync in the foreground",
		Long: `Run one sync job in this process and wait for it to finish. Ctrl-C stops the
loop at the next batch boundary; the checkpoint keeps the last persisted page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := entities.ParseResourceType(args[0])
			if err != nil {
				return err
			}
			jobCfg, err := opts.jobConfig()
			if err != nil {
				return err
			}
			return runForeground(cmd, func(ctx context.Context, app *entrypoint.App) (*entities.SyncJob, error) {
				return app.Orchestrator.StartSync(ctx, rt, jobCfg)
			})
		},
	}

	cmd.Flags().IntVar(&opts.batchSize, "batch-size", entities.DefaultBatchSize, "records per page (max 250)")
	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "only fetch records updated since the last completed sync")
	cmd.Flags().BoolVar(&opts.exactProgress, "exact-progress", false, "count upstream records first for accurate progress")
	cmd.Flags().StringVar(&opts.updatedAfter, "updated-after", "", "only records updated at or after this RFC3339 time")
	cmd.Flags().StringVar(&opts.updatedBefore, "updated-before", "", "only records updated before this RFC3339 time")

	return cmd
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <orders|products>",
		Short: "Resume a sync from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := entities.ParseResourceType(args[0])
			if err != nil {
				return err
			}
			return runForeground(cmd, func(ctx context.Context, app *entrypoint.App) (*entities.SyncJob, error) {
				return app.Orchestrator.ResumeSync(ctx, rt)
			})
		},
	}
}

// runForeground starts a job on the in-process pool and blocks until it is
// terminal. SIGINT interrupts the loop.
func runForeground(cmd *cobra.Command, start func(ctx context.Context, app *entrypoint.App) (*entities.SyncJob, error)) error {
	app, err := openApp(entrypoint.AppOptions{InProcess: true})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	job, err := start(ctx, app)
	if err != nil {
		return err
	}
	cmd.Printf("Started %s sync %s\n", job.ResourceType, job.ID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	done := make(chan struct{})
	go func() {
		app.WaitRuns()
		close(done)
	}()

	select {
	case <-done:
	case <-quit:
		cmd.Println("Interrupt received, stopping at the next batch boundary...")
		app.CancelRuns()
		<-done
	}

	final, err := app.Jobs.Get(context.Background(), job.ID)
	if err != nil {
		return err
	}
	printJob(cmd.OutOrStdout(), final)

	if final.Status == entities.SyncStatusFailed {
		return fmt.Errorf("sync %s failed: %s", final.ID, final.Error)
	}
	return nil
}

func openApp(opts entrypoint.AppOptions) (*entrypoint.App, error) {
	cfg := config.NewConfig()
	log := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: "console",
		File:   cfg.Log.File,
	})
	return entrypoint.NewApp(cfg, log, opts)
}
