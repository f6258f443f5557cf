// Package upgrade implements the Upgrade Scheduler: rolling a batch of
// node services onto a new binary version one at a time, preserving each
// node's peer identity across the restart. Grounded on the fixed pacing
// interval used by node-launchpad's status component
// (original_source/node-launchpad/src/components/status.rs's
// FIXED_INTERVAL) and the teacher reconciler's one-item-at-a-time retry
// loop shape (internal/reconciler/manager.go).
package upgrade

import (
	"context"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/provision"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// Options configures one Upgrade batch.
type Options struct {
	ServiceNames         []string
	Version              string
	URL                  string
	Force                bool
	DoNotStart           bool
	FixedInterval        time.Duration
	ConnectionTimeout    time.Duration
	ProvidedEnvVariables []registry.EnvVar
	ExpectedPeerIDs      map[string]string
}

// Upgrade rolls opts.ServiceNames onto opts.Version one at a time: stop,
// replace binary, reinstall only if the environment changed, start and
// verify identity, then pace with opts.FixedInterval before the next
// target. A peer-id mismatch after restart is fatal for that service but
// never halts the batch.
func Upgrade(
	ctx context.Context,
	opts Options,
	reg *registry.Registry,
	ctl control.Controller,
	watcher lifecycle.PeerIdentityWatcher,
	fetcher fetch.Fetcher,
	settings config.Settings,
) (*ferrors.BatchResult, error) {
	result := ferrors.NewBatchResult()

	for i, name := range opts.ServiceNames {
		if err := upgradeOne(ctx, opts, reg, ctl, watcher, fetcher, settings, name); err != nil {
			logging.Warn("upgrade", "%s: %v", name, err)
			result.AddFailure(name, err)
		} else {
			result.AddSuccess(name)
		}

		if i < len(opts.ServiceNames)-1 && opts.FixedInterval > 0 {
			select {
			case <-time.After(opts.FixedInterval):
			case <-ctx.Done():
				return result, result.Err()
			}
		}
	}

	return result, result.Err()
}

func upgradeOne(
	ctx context.Context,
	opts Options,
	reg *registry.Registry,
	ctl control.Controller,
	watcher lifecycle.PeerIdentityWatcher,
	fetcher fetch.Fetcher,
	settings config.Settings,
	name string,
) error {
	node := reg.FindNode(name)
	if node == nil {
		return ferrors.NewServiceNotFoundError(name)
	}

	if !opts.Force && sameVersion(node.Version, opts.Version) {
		logging.Info("upgrade", "%s already at version %s, skipping", name, opts.Version)
		return nil
	}

	stopCtx := ctx
	var cancel context.CancelFunc
	if opts.ConnectionTimeout > 0 {
		stopCtx, cancel = context.WithTimeout(ctx, opts.ConnectionTimeout)
		defer cancel()
	}
	if node.Status == registry.StatusRunning {
		if err := lifecycle.Stop(stopCtx, reg, ctl, name); err != nil {
			return err
		}
	}

	stagedPath, err := fetcher.Fetch(ctx, fetch.Request{Kind: fetch.KindNode, Version: opts.Version, URL: opts.URL})
	if err != nil {
		return err
	}
	if err := replaceBinary(stagedPath, node.SafenodePath); err != nil {
		return err
	}
	node.Version = opts.Version

	if envVariablesDiffer(reg.EnvironmentVariables, opts.ProvidedEnvVariables) {
		reg.EnvironmentVariables = opts.ProvidedEnvVariables
		ictx := provision.BuildInstallContext(node, reg.BootstrapPeers, reg.EnvironmentVariables)
		if err := ctl.Install(ctx, ictx); err != nil {
			return &ferrors.ControllerError{Service: name, Op: "install", Err: err}
		}
	}

	if err := reg.Save(); err != nil {
		return err
	}

	if opts.DoNotStart {
		return nil
	}

	startCtx := ctx
	if opts.ConnectionTimeout > 0 {
		var startCancel context.CancelFunc
		startCtx, startCancel = context.WithTimeout(ctx, opts.ConnectionTimeout)
		defer startCancel()
	}
	if err := lifecycle.Start(startCtx, reg, ctl, watcher, name); err != nil {
		return err
	}

	expected, wanted := opts.ExpectedPeerIDs[name]
	if wanted {
		if node.PeerID == nil {
			return &ferrors.IdentityMismatchError{Service: name, Expected: expected, Got: "<none>"}
		}
		if *node.PeerID != expected {
			return &ferrors.IdentityMismatchError{Service: name, Expected: expected, Got: *node.PeerID}
		}
	}
	return nil
}

// sameVersion reports whether a and b are equal under semver comparison,
// falling back to a plain string comparison if either fails to parse (a
// malformed stored version should not make every upgrade look novel, nor
// should it silently skip one).
func sameVersion(a, b string) bool {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr != nil || berr != nil {
		return a == b
	}
	return av.Equal(bv)
}

func envVariablesDiffer(current, provided []registry.EnvVar) bool {
	if len(provided) == 0 {
		return false
	}
	return !reflect.DeepEqual(current, provided)
}

// replaceBinary overwrites the node's existing binary in place with the
// newly fetched one, preserving executable permissions.
func replaceBinary(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &ferrors.FilesystemError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return &ferrors.FilesystemError{Op: "copy", Path: dst, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return &ferrors.FilesystemError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}
