package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/storesync/internal/database/jobs"
	"github.com/mrlokans/storesync/internal/entrypoint"
)

func newJobCommand() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show a sync job and its batch events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(entrypoint.AppOptions{InProcess: true, WithoutUpstream: true})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			job, err := app.Jobs.Get(ctx, args[0])
			if errors.Is(err, jobs.ErrNotFound) {
				return fmt.Errorf("sync job %s not found", args[0])
			}
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)

			if !showEvents {
				return nil
			}
			events, err := app.Events.ListForJob(ctx, job.ID, 0)
			if err != nil {
				return fmt.Errorf("load events: %w", err)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", true, "list batch events")
	return cmd
}
