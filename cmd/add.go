package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/provision"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

var (
	addCount          int
	addGenesis        bool
	addLocal          bool
	addNodePort       uint16
	addVersion        string
	addURL            string
	addServiceUser    string
	addBootstrapPeers []string
	addEnvVars        []string
)

func newAddCmd() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Provision new node services",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}

			opts := provision.AddOptions{
				Count:          addCount,
				Genesis:        addGenesis,
				Local:          addLocal,
				Version:        addVersion,
				URL:            addURL,
				ServiceUser:    addServiceUser,
				BootstrapPeers: addBootstrapPeers,
				EnvVars:        parseEnvVars(addEnvVars),
			}
			if addNodePort != 0 {
				opts.NodePort = &addNodePort
			}

			result, err := provision.Add(cmd.Context(), opts, reg, buildController(), buildFetcher(), settings)
			if result != nil {
				printBatchResult(cmd.OutOrStdout(), "add", result)
			}
			return err
		},
	}

	addCmd.Flags().IntVar(&addCount, "count", 1, "number of nodes to provision")
	addCmd.Flags().BoolVar(&addGenesis, "genesis", false, "mark the provisioned node as the genesis node")
	addCmd.Flags().BoolVar(&addLocal, "local", false, "run the node(s) in local mode")
	addCmd.Flags().Uint16Var(&addNodePort, "node-port", 0, "fixed node port (only valid with --count=1)")
	addCmd.Flags().StringVar(&addVersion, "version", "", "node binary version to fetch")
	addCmd.Flags().StringVar(&addURL, "url", "", "node binary URL to fetch")
	addCmd.Flags().StringVar(&addServiceUser, "user", "", "OS user to own the provisioned service directories")
	addCmd.Flags().StringSliceVar(&addBootstrapPeers, "peer", nil, "bootstrap peer multiaddr (repeatable)")
	addCmd.Flags().StringSliceVar(&addEnvVars, "env", nil, "environment variable NAME=VALUE (repeatable)")

	addCmd.AddCommand(newAddFaucetCmd())
	addCmd.AddCommand(newAddDaemonCmd())
	return addCmd
}

func newAddFaucetCmd() *cobra.Command {
	var version, url, user string
	var local bool

	cmd := &cobra.Command{
		Use:   "faucet",
		Short: "Provision the singleton faucet service",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}
			opts := provision.FaucetOptions{Version: version, URL: url, ServiceUser: user, Local: local}
			return provision.AddFaucet(cmd.Context(), opts, reg, buildController(), buildFetcher(), settings)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "faucet binary version to fetch")
	cmd.Flags().StringVar(&url, "url", "", "faucet binary URL to fetch")
	cmd.Flags().StringVar(&user, "user", "", "OS user to own the faucet service directories")
	cmd.Flags().BoolVar(&local, "local", false, "run the faucet in local mode")
	return cmd
}

func newAddDaemonCmd() *cobra.Command {
	var version, url, address string
	var port uint16

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Provision the singleton daemon service",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()
			reg, err := registry.Load(settings.RegistryPath)
			if err != nil {
				return err
			}
			opts := provision.DaemonOptions{Version: version, URL: url, Port: port, Address: address}
			return provision.AddDaemon(cmd.Context(), opts, reg, buildController(), buildFetcher(), settings)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "daemon binary version to fetch")
	cmd.Flags().StringVar(&url, "url", "", "daemon binary URL to fetch")
	cmd.Flags().Uint16Var(&port, "port", 0, "RPC port for the daemon")
	cmd.Flags().StringVar(&address, "address", "", "RPC bind address for the daemon")
	return cmd
}

func parseEnvVars(raw []string) []registry.EnvVar {
	out := make([]registry.EnvVar, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out = append(out, registry.EnvVar{Name: name, Value: value})
	}
	return out
}
