package control

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sddbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// unitDir is where systemd unit files are written for services this
// manager installs. Matches systemd's own search path for system units
// that are not shipped by a package.
const unitDir = "/etc/systemd/system"

// SystemdController drives systemd over D-Bus: unit file generation plus
// the systemd1 manager's StartUnit/StopUnit/GetUnitProperties calls.
// Grounded on the D-Bus connection and unit lifecycle pattern in
// Xuanwo/nomad-driver-systemd-nspawn's systemd package, adapted from
// go-systemd's legacy dbus API to github.com/coreos/go-systemd/v22/dbus.
type SystemdController struct {
	mu           sync.Mutex
	allocatedPts map[uint16]bool
}

// NewSystemdController returns a Controller backed by the host's systemd.
func NewSystemdController() *SystemdController {
	return &SystemdController{allocatedPts: make(map[uint16]bool)}
}

func (c *SystemdController) connect(ctx context.Context) (*sddbus.Conn, error) {
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return conn, nil
}

func unitName(serviceName string) string {
	if strings.HasSuffix(serviceName, ".service") {
		return serviceName
	}
	return serviceName + ".service"
}

// Install renders and writes a systemd unit file for ictx and reloads the
// systemd manager so it is visible. It does not start the unit.
func (c *SystemdController) Install(ctx context.Context, ictx InstallContext) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return &ferrors.ControllerError{Service: ictx.Label, Op: "install", Err: err}
	}
	defer conn.Close()

	unit := renderUnit(ictx)
	path := filepath.Join(unitDir, unitName(ictx.Label))
	if err := os.WriteFile(path, []byte(unit), 0o644); err != nil {
		return &ferrors.ControllerError{Service: ictx.Label, Op: "install", Err: err}
	}

	if err := conn.ReloadContext(ctx); err != nil {
		return &ferrors.ControllerError{Service: ictx.Label, Op: "install", Err: err}
	}
	logging.Info("SystemdController", "Installed unit %s", path)
	return nil
}

// renderUnit builds a systemd unit file body from an InstallContext. Kept
// as a pure function so it can be tested independent of a live D-Bus
// connection.
func renderUnit(ictx InstallContext) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n\n", ictx.Label)
	b.WriteString("[Service]\n")
	fmt.Fprintf(&b, "ExecStart=%s %s\n", ictx.ProgramPath, strings.Join(ictx.Args, " "))
	if ictx.ServiceUser != "" {
		fmt.Fprintf(&b, "User=%s\n", ictx.ServiceUser)
	}
	if ictx.WorkingDirectory != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", ictx.WorkingDirectory)
	}
	for k, v := range ictx.Environment {
		fmt.Fprintf(&b, "Environment=%s=%s\n", k, v)
	}
	b.WriteString("Restart=on-failure\n\n")
	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}

// Start starts serviceName via systemd's StartUnit, waiting for the job to
// complete (queued/running/failed), not for the service to report ready.
func (c *SystemdController) Start(ctx context.Context, serviceName string) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: err}
	}
	defer conn.Close()

	result := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, unitName(serviceName), "replace", result); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: err}
	}
	select {
	case status := <-result:
		if status != "done" {
			return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: fmt.Errorf("job result: %s", status)}
		}
	case <-ctx.Done():
		return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: ctx.Err()}
	}
	return nil
}

// Stop stops serviceName. Re-issuing Stop against an already-stopped unit
// is safe: systemd reports "done" for a no-op stop job.
func (c *SystemdController) Stop(ctx context.Context, serviceName string) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "stop", Err: err}
	}
	defer conn.Close()

	result := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, unitName(serviceName), "replace", result); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "stop", Err: err}
	}
	select {
	case status := <-result:
		if status != "done" {
			return &ferrors.ControllerError{Service: serviceName, Op: "stop", Err: fmt.Errorf("job result: %s", status)}
		}
	case <-ctx.Done():
		return &ferrors.ControllerError{Service: serviceName, Op: "stop", Err: ctx.Err()}
	}
	return nil
}

// Uninstall disables and removes the unit file. Idempotent: a missing
// unit file is not an error.
func (c *SystemdController) Uninstall(ctx context.Context, serviceName string) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}
	defer conn.Close()

	name := unitName(serviceName)
	if _, err := conn.DisableUnitFilesContext(ctx, []string{name}, false); err != nil {
		logging.Warn("SystemdController", "Disable %s: %v (continuing)", name, err)
	}

	path := filepath.Join(unitDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}
	return nil
}

// Wait blocks until serviceName leaves the "activating"/"deactivating"
// transitional states, or ctx is done.
func (c *SystemdController) Wait(ctx context.Context, serviceName string) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "wait", Err: err}
	}
	defer conn.Close()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		state, err := activeState(ctx, conn, serviceName)
		if err != nil {
			return &ferrors.ControllerError{Service: serviceName, Op: "wait", Err: err}
		}
		if state != "activating" && state != "deactivating" {
			return nil
		}
		select {
		case <-ctx.Done():
			return &ferrors.ControllerError{Service: serviceName, Op: "wait", Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func activeState(ctx context.Context, conn *sddbus.Conn, serviceName string) (string, error) {
	props, err := conn.GetUnitPropertiesContext(ctx, unitName(serviceName))
	if err != nil {
		return "", err
	}
	state, _ := props["ActiveState"].(string)
	return state, nil
}

// GetPID returns the MainPID systemd reports for serviceName.
func (c *SystemdController) GetPID(ctx context.Context, serviceName string) (int, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: err}
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, unitName(serviceName))
	if err != nil {
		return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: err}
	}
	pid, _ := props["MainPID"].(uint32)
	if pid == 0 {
		return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: fmt.Errorf("no main pid reported")}
	}
	return int(pid), nil
}

// IsRunning reports whether systemd's ActiveState for serviceName is
// "active".
func (c *SystemdController) IsRunning(ctx context.Context, serviceName string) (bool, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return false, &ferrors.ControllerError{Service: serviceName, Op: "is_running", Err: err}
	}
	defer conn.Close()

	state, err := activeState(ctx, conn, serviceName)
	if err != nil {
		return false, &ferrors.ControllerError{Service: serviceName, Op: "is_running", Err: err}
	}
	return state == "active", nil
}

// GetAvailablePort returns a TCP port in [min, max] not currently bound
// on the host, remembering ports it has handed out this process's
// lifetime so a rapid back-to-back call cannot return the same port
// twice before the caller has bound it.
func (c *SystemdController) GetAvailablePort(ctx context.Context, min, max uint16) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for port := min; port <= max; port++ {
		if c.allocatedPts[port] {
			continue
		}
		if portFree(port) {
			c.allocatedPts[port] = true
			return port, nil
		}
		if port == max {
			break
		}
	}
	return 0, fmt.Errorf("no available port in [%d, %d]", min, max)
}

func portFree(port uint16) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
