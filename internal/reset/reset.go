// Package reset implements the Reset Engine: tearing down every known
// service and returning the registry to empty, optionally handing off to
// the Maintenance Controller to immediately re-provision a previously
// recorded desired count.
package reset

import (
	"context"
	"os"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/natprobe"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// Options configures a Reset call.
type Options struct {
	// StartAfter, when non-nil, hands off to the Maintenance Controller
	// with the given target count once the reset completes.
	StartAfter *maintain.Options
}

// Result reports the outcome of a Reset call, including the Maintenance
// Controller's result if StartAfter was requested.
type Result struct {
	Stopped       *ferrors.BatchResult
	Removed       *ferrors.BatchResult
	MaintainAfter *ferrors.BatchResult
}

// Reset stops every Running node, uninstalls every node and purges its
// data and log directories, uninstalls the faucet (purging only its log
// directory) and the daemon (purging no directory), clears the registry,
// persists it empty, and — if
// opts.StartAfter is set — immediately re-provisions the fleet to the
// given target count via the Maintenance Controller.
func Reset(
	ctx context.Context,
	opts Options,
	reg *registry.Registry,
	ctl control.Controller,
	watcher lifecycle.PeerIdentityWatcher,
	fetcher fetch.Fetcher,
	prober natprobe.Prober,
	settings config.Settings,
) (*Result, error) {
	res := &Result{Stopped: ferrors.NewBatchResult(), Removed: ferrors.NewBatchResult()}

	for _, n := range reg.RunningNodes() {
		if err := lifecycle.Stop(ctx, reg, ctl, n.ServiceName); err != nil {
			logging.Warn("reset", "failed to stop %s: %v", n.ServiceName, err)
			res.Stopped.AddFailure(n.ServiceName, err)
			continue
		}
		res.Stopped.AddSuccess(n.ServiceName)
	}

	for _, n := range reg.ActiveNodes() {
		if err := uninstallAndPurge(ctx, ctl, n.ServiceName, n.DataDirPath, n.LogDirPath); err != nil {
			logging.Warn("reset", "failed to remove %s: %v", n.ServiceName, err)
			res.Removed.AddFailure(n.ServiceName, err)
			continue
		}
		res.Removed.AddSuccess(n.ServiceName)
	}
	reg.Nodes = []*registry.NodeService{}

	if reg.Faucet != nil {
		if err := uninstallAndPurge(ctx, ctl, reg.Faucet.ServiceName, "", reg.Faucet.LogDirPath); err != nil {
			logging.Warn("reset", "failed to remove faucet: %v", err)
			res.Removed.AddFailure(reg.Faucet.ServiceName, err)
		} else {
			res.Removed.AddSuccess(reg.Faucet.ServiceName)
		}
		reg.Faucet = nil
	}
	if reg.Daemon != nil {
		if err := uninstallAndPurge(ctx, ctl, reg.Daemon.ServiceName, "", ""); err != nil {
			logging.Warn("reset", "failed to remove daemon: %v", err)
			res.Removed.AddFailure(reg.Daemon.ServiceName, err)
		} else {
			res.Removed.AddSuccess(reg.Daemon.ServiceName)
		}
		reg.Daemon = nil
	}

	if err := reg.Save(); err != nil {
		return res, err
	}
	logging.Info("reset", "fleet reset complete")

	if opts.StartAfter != nil {
		engine := maintain.NewEngine()
		maintained, err := engine.Maintain(ctx, *opts.StartAfter, reg, ctl, watcher, fetcher, prober, settings)
		res.MaintainAfter = maintained
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

func uninstallAndPurge(ctx context.Context, ctl control.Controller, serviceName, dataDir, logDir string) error {
	if err := ctl.Uninstall(ctx, serviceName); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}
	if dataDir != "" {
		if err := os.RemoveAll(dataDir); err != nil {
			return &ferrors.FilesystemError{Op: "remove", Path: dataDir, Err: err}
		}
	}
	if logDir != "" {
		if err := os.RemoveAll(logDir); err != nil {
			return &ferrors.FilesystemError{Op: "remove", Path: logDir, Err: err}
		}
	}
	return nil
}
