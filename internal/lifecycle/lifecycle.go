// Package lifecycle implements the per-service Start, Stop, and Remove
// operations: the single-node counterpart to the Maintenance Controller's
// fleet-wide scale-to-target loop.
package lifecycle

import (
	"context"
	"os"

	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// PeerIdentityWatcher is the side channel, out of scope for this module,
// through which a just-started node announces the peer id and listen
// address it bound. Start blocks briefly on it after requesting the OS
// start the service.
type PeerIdentityWatcher interface {
	WaitForPeerID(ctx context.Context, serviceName string) (peerID string, listenAddr string, err error)
}

// Start starts a node that is not currently Running: it refuses if the
// node is already Running, otherwise asks the controller to start it,
// waits for the node to announce its identity over watcher, records the
// observed pid/peer_id/listen_addr, and persists the registry.
func Start(ctx context.Context, reg *registry.Registry, ctl control.Controller, watcher PeerIdentityWatcher, serviceName string) error {
	n := reg.FindNode(serviceName)
	if n == nil {
		return ferrors.NewServiceNotFoundError(serviceName)
	}
	if n.Status == registry.StatusRunning {
		return ferrors.NewPreconditionError(serviceName + " is already running")
	}

	if err := ctl.Start(ctx, serviceName); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: err}
	}

	peerID, listenAddr, err := watcher.WaitForPeerID(ctx, serviceName)
	if err != nil {
		logging.Warn("lifecycle", "%s started but did not announce a peer id in time: %v", serviceName, err)
	} else if peerID != "" {
		n.PeerID = &peerID
		n.ListenAddr = &listenAddr
	}

	if pid, err := ctl.GetPID(ctx, serviceName); err == nil {
		n.PID = &pid
	}

	if err := n.Transition(registry.StatusRunning); err != nil {
		return err
	}
	return reg.Save()
}

// Stop stops a Running node: it refuses for any other status, otherwise
// asks the controller to stop it, clears the observed pid and connected
// peers (peer_id is preserved, since identity persists across restarts),
// and persists the registry.
func Stop(ctx context.Context, reg *registry.Registry, ctl control.Controller, serviceName string) error {
	n := reg.FindNode(serviceName)
	if n == nil {
		return ferrors.NewServiceNotFoundError(serviceName)
	}
	if n.Status != registry.StatusRunning {
		return ferrors.NewPreconditionError(serviceName + " is not running")
	}

	if err := ctl.Stop(ctx, serviceName); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "stop", Err: err}
	}

	n.PID = nil
	n.ConnectedPeers = nil
	if err := n.Transition(registry.StatusStopped); err != nil {
		return err
	}
	return reg.Save()
}

// Remove uninstalls a Stopped or Added node and marks it Removed. Unless
// keepDirectories is set, its data and log directories are deleted.
// Calling Remove on a node that is already Removed is a no-op success:
// the operation is idempotent, per the invariant that a Removed record's
// lifecycle never reopens.
func Remove(ctx context.Context, reg *registry.Registry, ctl control.Controller, serviceName string, keepDirectories bool) error {
	n := reg.FindNode(serviceName)
	if n == nil {
		return ferrors.NewServiceNotFoundError(serviceName)
	}
	if n.Status == registry.StatusRemoved {
		return nil
	}
	if n.Status != registry.StatusStopped && n.Status != registry.StatusAdded {
		return ferrors.NewPreconditionError(serviceName + " must be stopped before it can be removed")
	}

	if err := ctl.Uninstall(ctx, serviceName); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}

	if !keepDirectories {
		if err := os.RemoveAll(n.DataDirPath); err != nil {
			return &ferrors.FilesystemError{Op: "remove", Path: n.DataDirPath, Err: err}
		}
		if err := os.RemoveAll(n.LogDirPath); err != nil {
			return &ferrors.FilesystemError{Op: "remove", Path: n.LogDirPath, Err: err}
		}
	}

	if err := n.Transition(registry.StatusRemoved); err != nil {
		return err
	}
	return reg.Save()
}
