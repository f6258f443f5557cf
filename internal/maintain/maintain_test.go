package maintain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

type fakeFetcher struct{ path string }

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) (string, error) { return f.path, nil }

type fakeWatcher struct{}

func (fakeWatcher) WaitForPeerID(ctx context.Context, serviceName string) (string, string, error) {
	return "peer-" + serviceName, "/ip4/127.0.0.1/tcp/12000", nil
}

type fakeProber struct {
	status registry.NatStatus
	err    error
	calls  int
}

func (p *fakeProber) Detect(ctx context.Context) (registry.NatStatus, error) {
	p.calls++
	return p.status, p.err
}

func newSettings(t *testing.T) config.Settings {
	t.Helper()
	root := t.TempDir()
	s := config.Default()
	s.DataRoot = filepath.Join(root, "services")
	s.LogRoot = filepath.Join(root, "logs")
	s.RegistryPath = filepath.Join(root, "node_registry.yaml")
	return s
}

func stagedBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "antnode")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o755))
	return path
}

func TestMaintainScalesUpFromEmpty(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	engine := NewEngine()

	result, err := engine.Maintain(context.Background(), Options{TargetCount: 3}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: stagedBinary(t)}, nil, settings)

	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 3)
	assert.Len(t, reg.RunningNodes(), 3)
}

func TestMaintainRecruitsBeforeProvisioning(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	reg.Nodes = append(reg.Nodes,
		&registry.NodeService{ServiceName: "antnode1", Number: 1, Status: registry.StatusStopped},
		&registry.NodeService{ServiceName: "antnode2", Number: 2, Status: registry.StatusAdded},
	)
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode2"}))
	engine := NewEngine()

	result, err := engine.Maintain(context.Background(), Options{TargetCount: 2}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: stagedBinary(t)}, nil, settings)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"antnode1", "antnode2"}, result.Succeeded)
	assert.Len(t, reg.Nodes, 2, "no new nodes should have been provisioned")
}

func TestMaintainScalesDownMostRecentFirst(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	reg.Nodes = append(reg.Nodes,
		&registry.NodeService{ServiceName: "antnode1", Number: 1, Status: registry.StatusRunning},
		&registry.NodeService{ServiceName: "antnode2", Number: 2, Status: registry.StatusRunning},
		&registry.NodeService{ServiceName: "antnode3", Number: 3, Status: registry.StatusRunning},
	)
	ctl := control.NewFakeController(49200)
	for _, name := range []string{"antnode1", "antnode2", "antnode3"} {
		require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: name}))
		require.NoError(t, ctl.Start(context.Background(), name))
	}
	engine := NewEngine()

	result, err := engine.Maintain(context.Background(), Options{TargetCount: 1}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: stagedBinary(t)}, nil, settings)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"antnode2", "antnode3"}, result.Succeeded)
	assert.Equal(t, registry.StatusRunning, reg.FindNode("antnode1").Status)
	assert.Equal(t, registry.StatusStopped, reg.FindNode("antnode2").Status)
	assert.Equal(t, registry.StatusStopped, reg.FindNode("antnode3").Status)
}

func TestMaintainReturnsSuccessWhenAlreadyAtTarget(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	reg.Nodes = append(reg.Nodes, &registry.NodeService{ServiceName: "antnode1", Number: 1, Status: registry.StatusRunning})
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))
	require.NoError(t, ctl.Start(context.Background(), "antnode1"))
	engine := NewEngine()

	result, err := engine.Maintain(context.Background(), Options{TargetCount: 1}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: stagedBinary(t)}, nil, settings)

	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.Failed)
}

func TestMaintainRunsNATDetectionOnceOnFirstStart(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	prober := &fakeProber{status: registry.NatPublic}
	engine := NewEngine()

	_, err := engine.Maintain(context.Background(), Options{TargetCount: 1, RunNATDetection: true}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: stagedBinary(t)}, prober, settings)

	require.NoError(t, err)
	assert.Equal(t, 1, prober.calls)
	assert.Equal(t, registry.NatPublic, reg.NatStatus())
}

func TestMaintainNATProbeSelfDisablesAfterThreeFailures(t *testing.T) {
	settings := newSettings(t)
	ctl := control.NewFakeController(49200)
	prober := &fakeProber{err: assertErr{"no route"}}
	engine := NewEngine()

	for i := 0; i < 5; i++ {
		reg := registry.NewEmpty(settings.RegistryPath)
		_, _ = engine.Maintain(context.Background(), Options{TargetCount: 1, RunNATDetection: true}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: stagedBinary(t)}, prober, settings)
	}

	assert.Equal(t, maxNATProbeFailures, prober.calls)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
