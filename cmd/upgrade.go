package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/dispatch"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/internal/upgrade"
)

var (
	upgradeVersion       string
	upgradeURL           string
	upgradeForce         bool
	upgradeDoNotStart    bool
	upgradeInterval      time.Duration
	upgradeConnTimeout   time.Duration
	upgradeEnv           []string
	upgradeExpectedPeers []string
)

func newUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade <service-name>...",
		Short: "Roll a batch of node services onto a new binary version",
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

			task := dispatch.NewTask(dispatch.KindUpgradeNodes)
			task.UpgradeOpts = upgrade.Options{
				ServiceNames:         args,
				Version:              upgradeVersion,
				URL:                  upgradeURL,
				Force:                upgradeForce,
				DoNotStart:           upgradeDoNotStart,
				FixedInterval:        upgradeInterval,
				ConnectionTimeout:    upgradeConnTimeout,
				ProvidedEnvVariables: parseEnvVars(upgradeEnv),
				ExpectedPeerIDs:      parseExpectedPeers(upgradeExpectedPeers),
			}
			d.Enqueue(task)

			return awaitTask(cmd, d, task.ID, "upgrade")
		},
	}

	cmd.Flags().StringVar(&upgradeVersion, "version", "", "node binary version to upgrade to")
	cmd.Flags().StringVar(&upgradeURL, "url", "", "node binary URL to upgrade to")
	cmd.Flags().BoolVar(&upgradeForce, "force", false, "reinstall even if the target is already on this version")
	cmd.Flags().BoolVar(&upgradeDoNotStart, "do-not-start", false, "leave each node stopped after replacing its binary")
	cmd.Flags().DurationVar(&upgradeInterval, "interval", 60*time.Second, "pause between upgrading consecutive targets")
	cmd.Flags().DurationVar(&upgradeConnTimeout, "connection-timeout", 0, "timeout for stopping a target before replacing its binary, and for restarting it afterwards")
	cmd.Flags().StringSliceVar(&upgradeEnv, "env", nil, "environment variable NAME=VALUE to reinstall with (repeatable)")
	cmd.Flags().StringSliceVar(&upgradeExpectedPeers, "expect-peer", nil, "service=peer_id identity check after restart (repeatable)")
	return cmd
}

func parseExpectedPeers(raw []string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, peerID, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[name] = peerID
	}
	return out
}
