//go:build windows

package control

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
)

// WindowsSCMController drives the Windows Service Control Manager via
// sc.exe, the same surface available to an unprivileged operator shell
// without a CGO dependency on the Win32 service APIs.
type WindowsSCMController struct {
	mu           sync.Mutex
	allocatedPts map[uint16]bool
}

// NewWindowsSCMController returns a Controller backed by sc.exe.
func NewWindowsSCMController() *WindowsSCMController {
	return &WindowsSCMController{allocatedPts: make(map[uint16]bool)}
}

func (c *WindowsSCMController) Install(ctx context.Context, ictx InstallContext) error {
	binPath := ictx.ProgramPath + " " + strings.Join(ictx.Args, " ")
	args := []string{"create", ictx.Label, "binPath=", binPath, "start=", "demand"}
	if err := exec.CommandContext(ctx, "sc.exe", args...).Run(); err != nil {
		return &ferrors.ControllerError{Service: ictx.Label, Op: "install", Err: err}
	}
	return nil
}

func (c *WindowsSCMController) Start(ctx context.Context, serviceName string) error {
	if err := exec.CommandContext(ctx, "sc.exe", "start", serviceName).Run(); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: err}
	}
	return nil
}

func (c *WindowsSCMController) Stop(ctx context.Context, serviceName string) error {
	// sc.exe stop on a non-running service exits non-zero; swallow it so
	// Stop stays idempotent.
	_ = exec.CommandContext(ctx, "sc.exe", "stop", serviceName).Run()
	return nil
}

func (c *WindowsSCMController) Uninstall(ctx context.Context, serviceName string) error {
	_ = exec.CommandContext(ctx, "sc.exe", "stop", serviceName).Run()
	if err := exec.CommandContext(ctx, "sc.exe", "delete", serviceName).Run(); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}
	return nil
}

func (c *WindowsSCMController) Wait(ctx context.Context, serviceName string) error {
	return nil
}

func (c *WindowsSCMController) queryState(ctx context.Context, serviceName string) (map[string]string, error) {
	out, err := exec.CommandContext(ctx, "sc.exe", "queryex", serviceName).Output()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return fields, nil
}

func (c *WindowsSCMController) GetPID(ctx context.Context, serviceName string) (int, error) {
	fields, err := c.queryState(ctx, serviceName)
	if err != nil {
		return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: err}
	}
	pid, err := strconv.Atoi(fields["PID"])
	if err != nil {
		return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: fmt.Errorf("no pid reported")}
	}
	return pid, nil
}

func (c *WindowsSCMController) IsRunning(ctx context.Context, serviceName string) (bool, error) {
	fields, err := c.queryState(ctx, serviceName)
	if err != nil {
		return false, &ferrors.ControllerError{Service: serviceName, Op: "is_running", Err: err}
	}
	return strings.Contains(fields["STATE"], "RUNNING"), nil
}

func (c *WindowsSCMController) GetAvailablePort(ctx context.Context, min, max uint16) (uint16, error) {
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
	}
	return 0, fmt.Errorf("no available port in [%d, %d]", min, max)
}
