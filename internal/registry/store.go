package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// requiredTopLevelKeys are the keys a well-formed registry document must
// carry, used to distinguish a corrupt-but-parseable document (wrong
// shape entirely) from one that is merely missing an optional field the
// loader can default. Grounded on the spec's distinct "load-corrupt"
// error taxonomy entry (SPEC_FULL.md §7).
var requiredTopLevelKeys = []string{"nodes", "bootstrap_peers"}

// mu serializes Save calls against a given path; the Task Dispatcher
// already guarantees single-writer access in the running process, but the
// mutex keeps Save safe to call directly from tests and from any future
// caller that doesn't route through the dispatcher.
var mu sync.Mutex

// Load reads the registry document at path. A missing file yields an
// empty registry whose SavePath is set to path so a subsequent Save
// creates it, per the spec's "load-missing is not an error" rule. A file
// that exists but cannot be parsed as YAML, or parses into a document
// missing the keys a registry document must carry, returns a
// SchemaMismatchError so the caller can offer a recovery affordance.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewEmpty(path), nil
	}
	if err != nil {
		return nil, &ferrors.RegistryIOError{Op: "load", Err: err}
	}

	var probe yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, &ferrors.SchemaMismatchError{Path: path}
	}
	if !hasRequiredKeys(&probe) {
		return nil, &ferrors.SchemaMismatchError{Path: path}
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, &ferrors.SchemaMismatchError{Path: path}
	}
	reg.SavePath = path
	if reg.Nodes == nil {
		reg.Nodes = []*NodeService{}
	}
	if reg.BootstrapPeers == nil {
		reg.BootstrapPeers = []string{}
	}
	return &reg, nil
}

// hasRequiredKeys inspects the top-level mapping of a parsed YAML document
// for the keys a registry document must carry. An empty document (zero
// content, e.g. an empty file) is treated as matching, since Save never
// produces one and this only guards against genuinely different schemas.
func hasRequiredKeys(node *yaml.Node) bool {
	if node.Kind == 0 {
		return true
	}
	doc := node
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		doc = node.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return false
	}
	present := make(map[string]bool, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		present[doc.Content[i].Value] = true
	}
	for _, key := range requiredTopLevelKeys {
		if !present[key] {
			return false
		}
	}
	return true
}

// Save atomically replaces the registry document on disk: it marshals to
// YAML, writes to a sibling temp file, fsyncs, and renames over the
// destination, so a reader never observes a partially written document.
func (r *Registry) Save() error {
	if r.SavePath == "" {
		return &ferrors.RegistryIOError{Op: "save", Err: errors.New("registry has no save path")}
	}

	mu.Lock()
	defer mu.Unlock()

	data, err := yaml.Marshal(r)
	if err != nil {
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}

	dir := filepath.Dir(r.SavePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.SavePath)+".tmp-*")
	if err != nil {
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpPath, r.SavePath); err != nil {
		return &ferrors.RegistryIOError{Op: "save", Err: err}
	}

	logging.Info("Registry", "Saved registry with %d node(s) to %s", len(r.Nodes), r.SavePath)
	return nil
}

// Controller is the subset of control.Controller the Refresh step needs:
// whether a service is currently running according to the OS, and its
// PID if so. Declared here, rather than imported from internal/control,
// to keep this package free of a dependency on the adapter package; the
// concrete control.Controller implementations satisfy it structurally.
type Controller interface {
	IsRunning(ctx context.Context, serviceName string) (bool, error)
	GetPID(ctx context.Context, serviceName string) (int, error)
}

// RefreshFlags controls which parts of the registry Refresh re-derives.
type RefreshFlags struct {
	// SkipNodes, when true, leaves node status/PID untouched (used by
	// callers that only care about the faucet/daemon, or that have just
	// refreshed nodes themselves).
	SkipNodes bool
}

// Refresh re-derives each node's observed PID and status from the OS
// service controller. A node whose registry status is Running but whose
// process the controller no longer reports as live has its PID cleared
// and its status downgraded to Stopped; this is the only place a node's
// status changes without an explicit operator action.
func Refresh(ctx context.Context, r *Registry, ctl Controller, flags RefreshFlags) error {
	if flags.SkipNodes {
		return nil
	}
	for _, n := range r.Nodes {
		if n.Status != StatusRunning {
			continue
		}
		running, err := ctl.IsRunning(ctx, n.ServiceName)
		if err != nil {
			logging.Warn("Registry", "Failed to refresh status for %s: %v", n.ServiceName, err)
			continue
		}
		if running {
			if pid, err := ctl.GetPID(ctx, n.ServiceName); err == nil {
				n.PID = &pid
			}
			continue
		}
		logging.Warn("Registry", "%s reported Running but the OS has no live process; downgrading to Stopped", n.ServiceName)
		n.PID = nil
		n.ConnectedPeers = nil
		if err := n.Transition(StatusStopped); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
	}
	return nil
}
