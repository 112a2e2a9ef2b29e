package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/entrypoint"
)

func newCheckpointCommand() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "checkpoint <orders|products>",
		Short: "Show or reset the resume point of a resource type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := entities.ParseResourceType(args[0])
			if err != nil {
				return err
			}

			app, err := openApp(entrypoint.AppOptions{InProcess: true, WithoutUpstream: true})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			if reset {
				if err := app.Checkpoints.Reset(ctx, rt); err != nil {
					return fmt.Errorf("reset checkpoint: %w", err)
				}
				cmd.Printf("Checkpoint for %s reset; the next resume starts from the first page\n", rt)
				return nil
			}

			cp, err := app.Checkpoints.Get(ctx, rt)
			if err != nil {
				return fmt.Errorf("load checkpoint: %w", err)
			}
			printCheckpoint(cmd.OutOrStdout(), cp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "delete the checkpoint")
	return cmd
}
