// Package cli implements the storesync command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree. Without a subcommand the HTTP
// server is started.
func NewRootCommand(version, commit string) *cobra.Command {
	root := &cobra.Command{
		Use:   "storesync",
		Short: "Shopify Admin API sync engine",
		Long: `storesync pages through the Shopify Admin API and keeps a normalized copy
and a raw mirror of orders and products, resuming from checkpoints.

Commands:
  serve       Run the HTTP API (default)
  sync        Run a sync in the foreground
  resume      Resume a sync from its checkpoint
  checkpoint  Show or reset a checkpoint
  job         Show a sync job and its batch events`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(version)
		},
	}

	root.AddCommand(
		newServeCommand(version),
		newSyncCommand(),
		newResumeCommand(),
		newCheckpointCommand(),
		newJobCommand(),
		newVersionCommand(version, commit),
	)

	return root
}

func newVersionCommand(version, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("storesync %s (commit: %s)\n", version, commit)
		},
	}
}
