//go:build darwin

package control

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
)

// launchdDir is where this manager writes per-service plists for the
// launchd "system" domain.
const launchdDir = "/Library/LaunchDaemons"

// LaunchdController drives macOS's launchd via launchctl(1), the only
// supported interface to the system launchd instance from outside a
// privileged daemon extension.
type LaunchdController struct {
	mu           sync.Mutex
	allocatedPts map[uint16]bool
}

// NewLaunchdController returns a Controller backed by launchctl.
func NewLaunchdController() *LaunchdController {
	return &LaunchdController{allocatedPts: make(map[uint16]bool)}
}

func label(serviceName string) string {
	if strings.Contains(serviceName, ".") {
		return serviceName
	}
	return "net.antfleet." + serviceName
}

func plistPath(serviceName string) string {
	return filepath.Join(launchdDir, label(serviceName)+".plist")
}

func (c *LaunchdController) Install(ctx context.Context, ictx InstallContext) error {
	plist := renderPlist(ictx)
	path := plistPath(ictx.Label)
	if err := os.WriteFile(path, []byte(plist), 0o644); err != nil {
		return &ferrors.ControllerError{Service: ictx.Label, Op: "install", Err: err}
	}
	if err := exec.CommandContext(ctx, "launchctl", "load", path).Run(); err != nil {
		return &ferrors.ControllerError{Service: ictx.Label, Op: "install", Err: err}
	}
	return nil
}

func renderPlist(ictx InstallContext) string {
	var args strings.Builder
	args.WriteString("\t\t<string>" + ictx.ProgramPath + "</string>\n")
	for _, a := range ictx.Args {
		args.WriteString("\t\t<string>" + a + "</string>\n")
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
%s	</array>
	<key>RunAtLoad</key>
	<false/>
	<key>KeepAlive</key>
	<true/>
</dict>
</plist>
`, label(ictx.Label), args.String())
}

func (c *LaunchdController) Start(ctx context.Context, serviceName string) error {
	if err := exec.CommandContext(ctx, "launchctl", "start", label(serviceName)).Run(); err != nil {
		return &ferrors.ControllerError{Service: serviceName, Op: "start", Err: err}
	}
	return nil
}

func (c *LaunchdController) Stop(ctx context.Context, serviceName string) error {
	// launchctl stop on an already-stopped job exits non-zero; treat that
	// as success to keep Stop idempotent, as the spec requires.
	_ = exec.CommandContext(ctx, "launchctl", "stop", label(serviceName)).Run()
	return nil
}

func (c *LaunchdController) Uninstall(ctx context.Context, serviceName string) error {
	path := plistPath(serviceName)
	_ = exec.CommandContext(ctx, "launchctl", "unload", path).Run()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ferrors.ControllerError{Service: serviceName, Op: "uninstall", Err: err}
	}
	return nil
}

func (c *LaunchdController) Wait(ctx context.Context, serviceName string) error {
	return nil
}

func (c *LaunchdController) GetPID(ctx context.Context, serviceName string) (int, error) {
	out, err := exec.CommandContext(ctx, "launchctl", "list", label(serviceName)).Output()
	if err != nil {
		return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: err}
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "\"PID\"" {
			pid, err := strconv.Atoi(strings.Trim(fields[len(fields)-1], "\";"))
			if err == nil {
				return pid, nil
			}
		}
	}
	return 0, &ferrors.ControllerError{Service: serviceName, Op: "get_pid", Err: fmt.Errorf("no pid reported")}
}

func (c *LaunchdController) IsRunning(ctx context.Context, serviceName string) (bool, error) {
	_, err := c.GetPID(ctx, serviceName)
	return err == nil, nil
}

func (c *LaunchdController) GetAvailablePort(ctx context.Context, min, max uint16) (uint16, error) {
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
