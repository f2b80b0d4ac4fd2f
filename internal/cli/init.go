package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tracker/internal/sqlite"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize tracker storage",
		Long:  "Create the configuration and data directories, then initialize the event journal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.journalConfig()
			if err != nil {
				return userError("%w", err)
			}
			journal := sqlite.NewBackend(types.DefaultRegistry())
			if err := journal.Attach(cfg); err != nil {
				return sysError("initialize journal: %w", err)
			}
			if err := journal.Detach(); err != nil {
				return sysError("finalize journal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracker initialized in %s\n", cfg.DataDir)
			return nil
		},
	}
}
