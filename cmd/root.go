package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/natprobe"
)

// Exit codes for CLI commands: distinct codes let scripts and automation
// tell a precondition failure (e.g. "genesis already exists") apart from
// a missing service or a generic error.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodePrecondition = 2
	ExitCodeNotFound     = 3
)

var (
	flagRegistryPath string
	flagDataRoot     string
	flagLogRoot      string
	flagFetchDir     string
)

// rootCmd is the entry point for the fleet manager CLI.
var rootCmd = &cobra.Command{
	Use:   "antctl",
	Short: "Operate a local fleet of storage-network node services",
	Long: `antctl provisions, starts, stops, upgrades, and resets a fleet of
storage-network node services running as OS-managed services on this
host, backed by a single persisted node registry document.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main at
// build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the entry point called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "antctl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	if ferrors.IsPrecondition(err) {
		return ExitCodePrecondition
	}
	if ferrors.IsNotFound(err) {
		return ExitCodeNotFound
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRegistryPath, "registry", "", "path to the node registry document (default: $ANTFLEET_REGISTRY_PATH or /var/antctl/node_registry.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataRoot, "data-root", "", "parent directory for per-service data directories")
	rootCmd.PersistentFlags().StringVar(&flagLogRoot, "log-root", "", "parent directory for per-service log directories")
	rootCmd.PersistentFlags().StringVar(&flagFetchDir, "fetch-dir", "", "directory containing pre-staged node/faucet/daemon binaries")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newMaintainCmd())
	rootCmd.AddCommand(newUpgradeCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDaemonCmd())
}

// loadSettings merges environment-derived settings with any persistent
// flags the user supplied, flags taking precedence.
func loadSettings() config.Settings {
	s := config.FromEnvironment()
	if flagRegistryPath != "" {
		s.RegistryPath = flagRegistryPath
	}
	if flagDataRoot != "" {
		s.DataRoot = flagDataRoot
	}
	if flagLogRoot != "" {
		s.LogRoot = flagLogRoot
	}
	return s
}

func buildController() control.Controller {
	return control.New()
}

func buildFetcher() fetch.Fetcher {
	dir := flagFetchDir
	if dir == "" {
		dir = "/var/antctl/fetched"
	}
	return fetch.NewLocalFetcher(dir)
}

func buildProber() natprobe.Prober {
	return natprobe.NewNoopProber()
}

func buildWatcher() lifecycle.PeerIdentityWatcher {
	return lifecycle.NewNoopWatcher()
}

// errAs reports whether err wraps an error of type T and, if so, returns
// it. Used by commands that need to branch on the typed error taxonomy,
// e.g. distinguishing an identity mismatch from a generic controller
// failure when rendering a batch result.
func errAs[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
