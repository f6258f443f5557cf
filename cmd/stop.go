package cmd

import (
	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/dispatch"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <service-name>...",
		Short: "Stop one or more node services",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}

			d := dispatch.New(reg, buildController(), buildWatcher(), buildFetcher(), buildProber(), settings)
			d.Start(cmd.Context())
			defer d.Stop()

			task := dispatch.NewTask(dispatch.KindStopNodes)
			task.StopServiceNames = args
			d.Enqueue(task)

			return awaitTask(cmd, d, task.ID, "stop")
		},
	}
}
