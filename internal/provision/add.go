package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// AddOptions describes a request to provision count new node services, or
// to supply fleet-wide settings (bootstrap peers, environment variables)
// that should be merged into the registry regardless of count.
type AddOptions struct {
	Count          int
	Genesis        bool
	Local          bool
	NodePort       *uint16
	Version        string
	URL            string
	ServiceUser    string
	BootstrapPeers []string
	EnvVars        []registry.EnvVar
}

// AddResult is the per-service outcome of an Add/Provision call.
type AddResult = ferrors.BatchResult

// Add provisions opts.Count new node services against reg, installing each
// one through ctl and staging its binary through fetcher, per the fixed
// add-services sequence: allocate port, derive paths, create directories,
// copy binary, build install context, install, append and save, or record
// the failure and continue to the next node.
func Add(ctx context.Context, opts AddOptions, reg *registry.Registry, ctl control.Controller, fetcher fetch.Fetcher, settings config.Settings) (*AddResult, error) {
	if opts.Genesis && opts.Count > 1 {
		return nil, ferrors.NewPreconditionError("genesis node cannot be requested alongside count > 1")
	}
	if opts.Genesis && reg.GenesisNode() != nil {
		return nil, ferrors.NewPreconditionError("registry already contains a genesis node")
	}
	if opts.NodePort != nil && opts.Count > 1 {
		return nil, ferrors.NewPreconditionError("a custom node_port cannot be assigned to more than one node")
	}

	reg.MergeBootstrapPeers(opts.BootstrapPeers)
	mergeEnvVars(reg, opts.EnvVars)

	stagedPath, err := fetcher.Fetch(ctx, fetch.Request{Kind: fetch.KindNode, Version: opts.Version, URL: opts.URL})
	if err != nil {
		return nil, fmt.Errorf("fetch node binary: %w", err)
	}

	result := ferrors.NewBatchResult()
	start := reg.NextNumber()

	for i := 0; i < opts.Count; i++ {
		number := start + uint16(i)
		serviceName := fmt.Sprintf("antnode%d", number)

		node, err := provisionOne(ctx, provisionParams{
			number:      number,
			serviceName: serviceName,
			opts:        opts,
			stagedPath:  stagedPath,
			settings:    settings,
			ctl:         ctl,
		})
		if err != nil {
			logging.Warn("provision", "add %s failed: %v", serviceName, err)
			result.AddFailure(serviceName, err)
			continue
		}

		reg.Nodes = append(reg.Nodes, node)
		if err := reg.Save(); err != nil {
			result.AddFailure(serviceName, &ferrors.RegistryIOError{Op: "save", Err: err})
			continue
		}
		result.AddSuccess(serviceName)
		logging.Info("provision", "added %s (genesis=%v, rpc=%s)", serviceName, node.Genesis, node.RPCSocketAddr)
	}

	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("provision", "failed to remove staged binary %s: %v", stagedPath, err)
	}

	return result, result.Err()
}

type provisionParams struct {
	number      uint16
	serviceName string
	opts        AddOptions
	stagedPath  string
	settings    config.Settings
	ctl         control.Controller
}

func provisionOne(ctx context.Context, p provisionParams) (*registry.NodeService, error) {
	port, err := p.ctl.GetAvailablePort(ctx, p.settings.PortRangeMin, p.settings.PortRangeMax)
	if err != nil {
		return nil, &ferrors.ControllerError{Service: p.serviceName, Op: "get_available_port", Err: err}
	}
	rpcAddr := fmt.Sprintf("%s:%d", p.settings.RPCBindAddress, port)

	dataDir := filepath.Join(p.settings.DataRoot, p.serviceName)
	logDir := filepath.Join(p.settings.LogRoot, p.serviceName)
	if err := ensureOwnedDir(dataDir, p.opts.ServiceUser); err != nil {
		return nil, err
	}
	if err := ensureOwnedDir(logDir, p.opts.ServiceUser); err != nil {
		return nil, err
	}

	binPath := filepath.Join(dataDir, "antnode")
	if err := copyBinary(p.stagedPath, binPath); err != nil {
		return nil, err
	}

	node := &registry.NodeService{
		ServiceName:   p.serviceName,
		Number:        p.number,
		User:          p.opts.ServiceUser,
		Version:       p.opts.Version,
		Genesis:       p.opts.Genesis,
		Local:         p.opts.Local,
		RPCSocketAddr: rpcAddr,
		NodePort:      p.opts.NodePort,
		Status:        registry.StatusAdded,
		SafenodePath:  binPath,
		DataDirPath:   dataDir,
		LogDirPath:    logDir,
	}

	ictx := BuildInstallContext(node, p.opts.BootstrapPeers, p.opts.EnvVars)
	if err := p.ctl.Install(ctx, ictx); err != nil {
		return nil, &ferrors.ControllerError{Service: p.serviceName, Op: "install", Err: err}
	}

	return node, nil
}

// mergeEnvVars appends any environment variables not already present,
// preserving declaration order the way Registry.MergeBootstrapPeers does
// for peers.
func mergeEnvVars(reg *registry.Registry, vars []registry.EnvVar) {
	existing := make(map[string]bool, len(reg.EnvironmentVariables))
	for _, e := range reg.EnvironmentVariables {
		existing[e.Name] = true
	}
	for _, v := range vars {
		if !existing[v.Name] {
			reg.EnvironmentVariables = append(reg.EnvironmentVariables, v)
			existing[v.Name] = true
		}
	}
}

// ensureOwnedDir creates dir (and any parents) if it does not already
// exist, then attempts to chown it to owner. A chown failure is logged
// but not fatal — the caller may be running without privilege to change
// ownership in a test or development environment — but a failure to
// create the directory in the first place is.
func ensureOwnedDir(dir, owner string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ferrors.FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}
	if owner == "" {
		return nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		logging.Warn("provision", "could not resolve service user %q for %s: %v", owner, dir, err)
		return nil
	}
	uid, uerr := strconv.Atoi(u.Uid)
	gid, gerr := strconv.Atoi(u.Gid)
	if uerr != nil || gerr != nil {
		return nil
	}
	if err := os.Chown(dir, uid, gid); err != nil {
		logging.Warn("provision", "could not chown %s to %s: %v", dir, owner, err)
	}
	return nil
}

// copyBinary copies src to dst with executable permissions, used to stage
// the fetched node/faucet/daemon binary into its service directory.
func copyBinary(src, dst string) error {
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
