package provision

import (
	"context"
	"os"
	"path/filepath"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// FaucetOptions describes a request to provision the singleton faucet
// service.
type FaucetOptions struct {
	Version     string
	URL         string
	ServiceUser string
	Local       bool
}

// AddFaucet installs the singleton faucet service, supplementing the
// distilled spec from the original's add_faucet: fails if the registry
// already has one, otherwise stages the binary, builds its install
// context, installs it, persists, and removes the staged binary.
func AddFaucet(ctx context.Context, opts FaucetOptions, reg *registry.Registry, ctl control.Controller, fetcher fetch.Fetcher, settings config.Settings) error {
	if reg.Faucet != nil {
		return ferrors.NewPreconditionError("registry already contains a faucet service")
	}

	stagedPath, err := fetcher.Fetch(ctx, fetch.Request{Kind: fetch.KindFaucet, Version: opts.Version, URL: opts.URL})
	if err != nil {
		return err
	}

	serviceName := "faucet"
	dataDir := filepath.Join(settings.DataRoot, serviceName)
	logDir := filepath.Join(settings.LogRoot, serviceName)
	if err := ensureOwnedDir(dataDir, opts.ServiceUser); err != nil {
		return err
	}
	if err := ensureOwnedDir(logDir, opts.ServiceUser); err != nil {
		return err
	}

	binPath := filepath.Join(dataDir, "faucet")
	if err := copyBinary(stagedPath, binPath); err != nil {
		return err
	}

	faucet := &registry.FaucetService{
		ServiceName: serviceName,
		User:        opts.ServiceUser,
		Version:     opts.Version,
		Local:       opts.Local,
		Status:      registry.StatusAdded,
		FaucetPath:  binPath,
		LogDirPath:  logDir,
	}

	ictx := BuildFaucetInstallContext(faucet, reg.BootstrapPeers, reg.EnvironmentVariables)
	if err := ctl.Install(ctx, ictx); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "install", Err: err}
	}

	reg.Faucet = faucet
	if err := reg.Save(); err != nil {
		return err
	}

	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("provision", "failed to remove staged binary %s: %v", stagedPath, err)
	}
	logging.Info("provision", "added faucet service")
	return nil
}

// DaemonOptions describes a request to provision the singleton daemon
// service.
type DaemonOptions struct {
	Version string
	URL     string
	Port    uint16
	Address string
}

// AddDaemon installs the singleton daemon service, supplementing the
// distilled spec from the original's add_daemon: fails if the registry
// already has one, otherwise stages the binary, builds its install
// context, installs it, persists, and removes the staged binary.
func AddDaemon(ctx context.Context, opts DaemonOptions, reg *registry.Registry, ctl control.Controller, fetcher fetch.Fetcher, settings config.Settings) error {
	if reg.Daemon != nil {
		return ferrors.NewPreconditionError("registry already contains a daemon service")
	}

	stagedPath, err := fetcher.Fetch(ctx, fetch.Request{Kind: fetch.KindDaemon, Version: opts.Version, URL: opts.URL})
	if err != nil {
		return err
	}

	serviceName := "antctld"
	dataDir := filepath.Join(settings.DataRoot, serviceName)
	if err := ensureOwnedDir(dataDir, ""); err != nil {
		return err
	}

	binPath := filepath.Join(dataDir, "antctld")
	if err := copyBinary(stagedPath, binPath); err != nil {
		return err
	}

	address := opts.Address
	if address == "" {
		address = settings.RPCBindAddress
	}

	daemon := &registry.DaemonService{
		ServiceName: serviceName,
		Version:     opts.Version,
		Status:      registry.StatusAdded,
		DaemonPath:  binPath,
	}

	ictx := BuildDaemonInstallContext(daemon, opts.Port, address)
	if err := ctl.Install(ctx, ictx); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "install", Err: err}
	}

	reg.Daemon = daemon
	if err := reg.Save(); err != nil {
		return err
	}

	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("provision", "failed to remove staged binary %s: %v", stagedPath, err)
	}
	logging.Info("provision", "added daemon service")
	return nil
}
