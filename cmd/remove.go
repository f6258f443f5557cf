package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

func newRemoveCmd() *cobra.Command {
	var keepDirectories bool

	cmd := &cobra.Command{
		Use:   "remove <service-name>",
		Short: "Uninstall a stopped node service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}
			if err := lifecycle.Remove(cmd.Context(), reg, buildController(), args[0], keepDirectories); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepDirectories, "keep-directories", false, "do not delete the service's data and log directories")
	return cmd
}
