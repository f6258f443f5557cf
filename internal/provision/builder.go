// Package provision implements the Service Descriptor Builder and the
// Add/Provision Engine: turning a request for N new node services (or a
// singleton faucet/daemon) into installed OS services and new registry
// records.
package provision

import (
	"fmt"

	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

// BuildInstallContext renders the install context for a node service. It
// is a pure function: identical inputs yield a byte-identical argument
// vector, in the fixed order --rpc, --port, --local, --genesis,
// --root-dir, --log-output-dest, one --peer per bootstrap peer — grounded
// on InstallNodeServiceCtxBuilder in
// original_source/sn_node_manager/src/add_services/mod.rs, adapted from a
// builder-struct to a plain function since Go has no builder-pattern
// convention for this shape.
func BuildInstallContext(n *registry.NodeService, bootstrapPeers []string, env []registry.EnvVar) control.InstallContext {
	args := []string{"--rpc", n.RPCSocketAddr}
	if n.NodePort != nil {
		args = append(args, "--port", fmt.Sprintf("%d", *n.NodePort))
	}
	if n.Local {
		args = append(args, "--local")
	}
	if n.Genesis {
		args = append(args, "--genesis")
	}
	args = append(args, "--root-dir", n.DataDirPath)
	args = append(args, "--log-output-dest", n.LogDirPath)
	for _, peer := range bootstrapPeers {
		args = append(args, "--peer", peer)
	}

	envMap := make(map[string]string, len(env))
	for _, e := range env {
		envMap[e.Name] = e.Value
	}
	if len(envMap) == 0 {
		envMap = nil
	}

	return control.InstallContext{
		Label:            n.ServiceName,
		ProgramPath:      n.SafenodePath,
		Args:             args,
		Environment:      envMap,
		WorkingDirectory: n.DataDirPath,
		ServiceUser:      n.User,
	}
}

// BuildDaemonInstallContext renders the install context for the
// singleton daemon service, per the original's add_daemon: a bare
// --port/--address pair, no RPC or data-dir flags (the daemon has no node
// data directory of its own).
func BuildDaemonInstallContext(d *registry.DaemonService, port uint16, address string) control.InstallContext {
	return control.InstallContext{
		Label:       d.ServiceName,
		ProgramPath: d.DaemonPath,
		Args:        []string{"--port", fmt.Sprintf("%d", port), "--address", address},
	}
}

// BuildFaucetInstallContext renders the install context for the
// singleton faucet service, per the original's add_faucet: bootstrap
// peers and an optional --local flag, logging to its own log directory.
func BuildFaucetInstallContext(f *registry.FaucetService, bootstrapPeers []string, env []registry.EnvVar) control.InstallContext {
	args := []string{"--log-output-dest", f.LogDirPath}
	if f.Local {
		args = append(args, "--local")
	}
	for _, peer := range bootstrapPeers {
		args = append(args, "--peer", peer)
	}

	envMap := make(map[string]string, len(env))
	for _, e := range env {
		envMap[e.Name] = e.Value
	}
	if len(envMap) == 0 {
		envMap = nil
	}

	return control.InstallContext{
		Label:       f.ServiceName,
		ProgramPath: f.FaucetPath,
		Args:        args,
		Environment: envMap,
		ServiceUser: f.User,
	}
}
