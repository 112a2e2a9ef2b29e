package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/storesync/internal/config"
	"github.com/mrlokans/storesync/internal/entrypoint"
)

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the scheduler and task workers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(version)
		},
	}
}

func runServe(version string) error {
	return entrypoint.Run(config.NewConfig(), version)
}
