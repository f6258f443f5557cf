// Package maintain implements the Maintenance Controller: the closed loop
// that drives the fleet's running-node count to a target, recruiting
// already-defined nodes before provisioning new ones, stopping the
// most-recently-started nodes on scale-down, and opportunistically
// triggering NAT detection on first start. Grounded on the teacher's
// internal/reconciler.Manager: a small stateful engine holding session
// state (here, the NAT-probe failure counter) across repeated
// reconciliation passes.
package maintain

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/natprobe"
	"github.com/harismuzaffer/antfleet/internal/provision"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// maxNATProbeFailures caps the opportunistic NAT-detection probe at three
// failures per session, after which the feature self-disables rather than
// retrying on every subsequent maintenance pass.
const maxNATProbeFailures = 3

// Options configures one Maintain pass.
type Options struct {
	TargetCount     int
	Local           bool
	RunNATDetection bool
	ServiceUser     string
	Version         string
	URL             string
	BootstrapPeers  []string
	EnvVars         []registry.EnvVar
}

// Engine runs Maintain passes against a single fleet, holding the
// session-scoped NAT-probe failure counter across calls.
type Engine struct {
	mu               sync.Mutex
	natProbeFailures int
}

// NewEngine returns a ready Engine with a fresh NAT-probe failure counter.
func NewEngine() *Engine {
	return &Engine{}
}

// Maintain drives the Running count to opts.TargetCount: refreshing
// observed state, recruiting defined-but-not-running nodes in ascending
// number order, provisioning any shortfall, and stopping the most
// recently started nodes on scale-down. It is best-effort: a failure on
// one service is recorded and the pass continues with the rest.
func (e *Engine) Maintain(
	ctx context.Context,
	opts Options,
	reg *registry.Registry,
	ctl control.Controller,
	watcher lifecycle.PeerIdentityWatcher,
	fetcher fetch.Fetcher,
	prober natprobe.Prober,
	settings config.Settings,
) (*ferrors.BatchResult, error) {
	if err := registry.Refresh(ctx, reg, ctl, registry.RefreshFlags{}); err != nil {
		return nil, err
	}

	result := ferrors.NewBatchResult()
	running := reg.RunningNodes()

	switch {
	case len(running) == opts.TargetCount:
		return result, nil
	case len(running) < opts.TargetCount:
		e.scaleUp(ctx, opts, reg, ctl, watcher, fetcher, prober, settings, opts.TargetCount-len(running), result)
	default:
		e.scaleDown(ctx, reg, ctl, len(running)-opts.TargetCount, result)
	}

	return result, result.Err()
}

func (e *Engine) scaleUp(
	ctx context.Context,
	opts Options,
	reg *registry.Registry,
	ctl control.Controller,
	watcher lifecycle.PeerIdentityWatcher,
	fetcher fetch.Fetcher,
	prober natprobe.Prober,
	settings config.Settings,
	shortfall int,
	result *ferrors.BatchResult,
) {
	defined := reg.DefinedNotRunning()
	sort.Slice(defined, func(i, j int) bool { return defined[i].Number < defined[j].Number })

	toRecruit := defined
	if len(toRecruit) > shortfall {
		toRecruit = toRecruit[:shortfall]
	}
	remaining := shortfall - len(toRecruit)

	if remaining > 0 {
		added, err := provision.Add(ctx, provision.AddOptions{
			Count:          remaining,
			Local:          opts.Local,
			ServiceUser:    opts.ServiceUser,
			Version:        opts.Version,
			URL:            opts.URL,
			BootstrapPeers: opts.BootstrapPeers,
			EnvVars:        opts.EnvVars,
		}, reg, ctl, fetcher, settings)
		if added == nil {
			logging.Warn("maintain", "provisioning shortfall failed entirely: %v", err)
		} else {
			for name, ferr := range added.Failed {
				result.AddFailure(name, ferr)
			}
			for _, name := range added.Succeeded {
				if n := reg.FindNode(name); n != nil {
					toRecruit = append(toRecruit, n)
				}
			}
		}
	}

	e.maybeDetectNAT(ctx, reg, prober, opts.RunNATDetection, len(toRecruit) > 0)

	e.startAll(ctx, reg, ctl, watcher, toRecruit, settings.MaxParallelStarts, result)
}

// startAll starts every node in nodes, bounded to maxParallel concurrent
// controller.Start calls. Port allocation already happened serially
// during provisioning, so parallel starts cannot race on it; completion
// order is unconstrained, only the order starts are requested follows the
// ascending-number ordering the spec requires.
func (e *Engine) startAll(ctx context.Context, reg *registry.Registry, ctl control.Controller, watcher lifecycle.PeerIdentityWatcher, nodes []*registry.NodeService, maxParallel int, result *ferrors.BatchResult) {
	if len(nodes) == 0 {
		return
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for _, n := range nodes {
		n := n
		g.Go(func() error {
			err := lifecycle.Start(gctx, reg, ctl, watcher, n.ServiceName)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.AddFailure(n.ServiceName, err)
			} else {
				result.AddSuccess(n.ServiceName)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) scaleDown(ctx context.Context, reg *registry.Registry, ctl control.Controller, surplus int, result *ferrors.BatchResult) {
	running := reg.RunningNodes()
	sort.Slice(running, func(i, j int) bool { return running[i].Number > running[j].Number })

	if surplus > len(running) {
		surplus = len(running)
	}
	for _, n := range running[:surplus] {
		if err := lifecycle.Stop(ctx, reg, ctl, n.ServiceName); err != nil {
			result.AddFailure(n.ServiceName, err)
			continue
		}
		result.AddSuccess(n.ServiceName)
	}
}

// maybeDetectNAT runs the NAT probe at most once per scale-up pass, before
// the pass's first start, when the caller requested it, the registry has
// no cached status yet, there is anything to start, and the probe has not
// already failed maxNATProbeFailures times this session.
func (e *Engine) maybeDetectNAT(ctx context.Context, reg *registry.Registry, prober natprobe.Prober, requested, aboutToStart bool) {
	if !requested || !aboutToStart || prober == nil {
		return
	}
	if reg.NatStatus() != registry.NatUnknown {
		return
	}

	e.mu.Lock()
	failures := e.natProbeFailures
	e.mu.Unlock()
	if failures >= maxNATProbeFailures {
		return
	}

	status, err := prober.Detect(ctx)
	if err != nil {
		e.mu.Lock()
		e.natProbeFailures++
		e.mu.Unlock()
		logging.Warn("maintain", "NAT detection failed: %v", err)
		return
	}
	reg.SetNatStatus(status)
}
