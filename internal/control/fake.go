package control

import (
	"context"
	"fmt"
	"sync"
)

// FakeController is an in-memory Controller used by tests throughout this
// module, grounded on the mockService pattern used to test retry/restart
// behavior in the teacher's orchestrator package: a small struct that
// records calls and lets a test script failures per service.
type FakeController struct {
	mu sync.Mutex

	installed map[string]InstallContext
	running   map[string]bool
	pids      map[string]int
	nextPID   int
	nextPort  uint16

	FailInstall   map[string]error
	FailStart     map[string]error
	FailStop      map[string]error
	FailUninstall map[string]error
}

// NewFakeController returns a FakeController with ports starting at
// portBase.
func NewFakeController(portBase uint16) *FakeController {
	return &FakeController{
		installed:     make(map[string]InstallContext),
		running:       make(map[string]bool),
		pids:          make(map[string]int),
		nextPID:       1000,
		nextPort:      portBase,
		FailInstall:   make(map[string]error),
		FailStart:     make(map[string]error),
		FailStop:      make(map[string]error),
		FailUninstall: make(map[string]error),
	}
}

func (f *FakeController) Install(ctx context.Context, ictx InstallContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailInstall[ictx.Label]; err != nil {
		return err
	}
	f.installed[ictx.Label] = ictx
	return nil
}

func (f *FakeController) Start(ctx context.Context, serviceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailStart[serviceName]; err != nil {
		return err
	}
	if _, ok := f.installed[serviceName]; !ok {
		return fmt.Errorf("%s: not installed", serviceName)
	}
	f.running[serviceName] = true
	f.nextPID++
	f.pids[serviceName] = f.nextPID
	return nil
}

func (f *FakeController) Stop(ctx context.Context, serviceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailStop[serviceName]; err != nil {
		return err
	}
	f.running[serviceName] = false
	delete(f.pids, serviceName)
	return nil
}

func (f *FakeController) Uninstall(ctx context.Context, serviceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailUninstall[serviceName]; err != nil {
		return err
	}
	delete(f.installed, serviceName)
	f.running[serviceName] = false
	delete(f.pids, serviceName)
	return nil
}

func (f *FakeController) Wait(ctx context.Context, serviceName string) error {
	return nil
}

func (f *FakeController) GetPID(ctx context.Context, serviceName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pid, ok := f.pids[serviceName]
	if !ok {
		return 0, fmt.Errorf("%s: no pid", serviceName)
	}
	return pid, nil
}

func (f *FakeController) IsRunning(ctx context.Context, serviceName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[serviceName], nil
}

func (f *FakeController) GetAvailablePort(ctx context.Context, min, max uint16) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextPort < min {
		f.nextPort = min
	}
	if f.nextPort > max {
		return 0, fmt.Errorf("no available port in [%d, %d]", min, max)
	}
	p := f.nextPort
	f.nextPort++
	return p, nil
}

// SetRunning forces the observed running state for a service, used by
// tests exercising Refresh's downgrade-to-Stopped path.
func (f *FakeController) SetRunning(serviceName string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[serviceName] = running
}

// InstalledContext returns the InstallContext last passed to Install for
// serviceName, for assertions on the Service Descriptor Builder's output.
func (f *FakeController) InstalledContext(serviceName string) (InstallContext, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ictx, ok := f.installed[serviceName]
	return ictx, ok
}
