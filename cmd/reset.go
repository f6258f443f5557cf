package cmd

import (
	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/dispatch"
	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/internal/reset"
)

var resetStartTarget int

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Tear down every known service and empty the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}

			d := dispatch.New(reg, buildController(), buildWatcher(), buildFetcher(), buildProber(), settings)
			d.Start(cmd.Context())
			defer d.Stop()

			task := dispatch.NewTask(dispatch.KindResetNodes)
			if resetStartTarget > 0 {
				task.ResetOpts.StartAfter = &maintain.Options{
					TargetCount:     resetStartTarget,
					RunNATDetection: settings.RunNATDetection,
				}
			}
			d.Enqueue(task)

			return awaitTask(cmd, d, task.ID, "reset")
		},
	}
	cmd.Flags().IntVar(&resetStartTarget, "start-count", 0, "immediately re-provision this many nodes after the reset completes")
	return cmd
}
