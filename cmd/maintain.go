package cmd

import (
	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/dispatch"
	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

var (
	maintainTarget      int
	maintainLocal       bool
	maintainVersion     string
	maintainURL         string
	maintainServiceUser string
	maintainPeers       []string
	maintainEnv         []string
	maintainNoNAT       bool
)

func newMaintainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Drive the running node count to a target, recruiting before provisioning",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}

			d := dispatch.New(reg, buildController(), buildWatcher(), buildFetcher(), buildProber(), settings)
			d.Start(cmd.Context())
			defer d.Stop()

			task := dispatch.NewTask(dispatch.KindMaintainNodes)
			task.MaintainOpts = maintain.Options{
				TargetCount:     maintainTarget,
				Local:           maintainLocal,
				RunNATDetection: settings.RunNATDetection && !maintainNoNAT,
				ServiceUser:     maintainServiceUser,
				Version:         maintainVersion,
				URL:             maintainURL,
				BootstrapPeers:  maintainPeers,
				EnvVars:         parseEnvVars(maintainEnv),
			}
			d.Enqueue(task)

			return awaitTask(cmd, d, task.ID, "maintain")
		},
	}

	cmd.Flags().IntVar(&maintainTarget, "target-count", 0, "desired number of running nodes")
	cmd.Flags().BoolVar(&maintainLocal, "local", false, "provision any newly started nodes in local mode")
	cmd.Flags().StringVar(&maintainVersion, "version", "", "node binary version to fetch when provisioning is needed")
	cmd.Flags().StringVar(&maintainURL, "url", "", "node binary URL to fetch when provisioning is needed")
	cmd.Flags().StringVar(&maintainServiceUser, "user", "", "OS user to own newly provisioned service directories")
	cmd.Flags().StringSliceVar(&maintainPeers, "peer", nil, "bootstrap peer multiaddr (repeatable)")
	cmd.Flags().StringSliceVar(&maintainEnv, "env", nil, "environment variable NAME=VALUE (repeatable)")
	cmd.Flags().BoolVar(&maintainNoNAT, "no-nat-detection", false, "skip the opportunistic NAT-reachability probe on first start")
	return cmd
}
