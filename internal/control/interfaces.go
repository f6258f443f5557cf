// Package control defines the Service Controller Adapter: the capability
// interface over an OS service manager (systemd on Linux, launchd on
// macOS, the Windows SCM), and a concrete implementation for each. Every
// call may block; callers run it from the Task Dispatcher's worker, never
// from a presentation thread.
package control

import "context"

// InstallContext is the record supplied to Install. Args must already be
// in the order the spec fixes: --rpc, optional --port, optional --local,
// optional --genesis, --root-dir, --log-output-dest, then one --peer per
// bootstrap peer, so two builds from identical NodeService input produce
// byte-identical argument vectors.
type InstallContext struct {
	Label            string
	ProgramPath      string
	Args             []string
	Environment      map[string]string
	WorkingDirectory string
	ServiceUser      string
}

// Controller is the Service Controller Adapter. It is the sole point of
// contact between the fleet manager and the host's OS service facility;
// the manager never hosts a node process in-process.
type Controller interface {
	// Install defines a service. It does not start it.
	Install(ctx context.Context, ictx InstallContext) error
	// Start starts a previously installed service.
	Start(ctx context.Context, serviceName string) error
	// Stop stops a running service. Idempotent: stopping an already
	// stopped service succeeds.
	Stop(ctx context.Context, serviceName string) error
	// Uninstall removes a service definition. Idempotent.
	Uninstall(ctx context.Context, serviceName string) error
	// Wait blocks until the service reaches a terminal state for the
	// requested transition, or ctx is done.
	Wait(ctx context.Context, serviceName string) error
	// GetPID returns the OS process id backing serviceName.
	GetPID(ctx context.Context, serviceName string) (int, error)
	// IsRunning reports whether the OS considers serviceName active.
	IsRunning(ctx context.Context, serviceName string) (bool, error)
	// GetAvailablePort returns a port in [min, max] not currently bound
	// by any process on the host.
	GetAvailablePort(ctx context.Context, min, max uint16) (uint16, error)
}
