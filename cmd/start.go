package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <service-name>",
		Short: "Start a single node service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}
			if err := lifecycle.Start(cmd.Context(), reg, buildController(), buildWatcher(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s started\n", args[0])
			return nil
		},
	}
}
