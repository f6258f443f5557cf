package reset

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
	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

type fakeFetcher struct{ path string }

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) (string, error) { return f.path, nil }

type fakeWatcher struct{}

func (fakeWatcher) WaitForPeerID(ctx context.Context, serviceName string) (string, string, error) {
	return "peer-" + serviceName, "/ip4/127.0.0.1/tcp/12000", nil
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

func TestResetClearsAllNodesAndPersistsEmpty(t *testing.T) {
	settings := newSettings(t)
	dataDir1, logDir1 := t.TempDir(), t.TempDir()
	reg := registry.NewEmpty(settings.RegistryPath)
	reg.Nodes = append(reg.Nodes, &registry.NodeService{
		ServiceName: "antnode1", Number: 1, Status: registry.StatusRunning, DataDirPath: dataDir1, LogDirPath: logDir1,
	})
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))
	require.NoError(t, ctl.Start(context.Background(), "antnode1"))

	result, err := Reset(context.Background(), Options{}, reg, ctl, fakeWatcher{}, &fakeFetcher{}, nil, settings)

	require.NoError(t, err)
	assert.Contains(t, result.Stopped.Succeeded, "antnode1")
	assert.Contains(t, result.Removed.Succeeded, "antnode1")
	assert.Empty(t, reg.Nodes)
	_, statErr := os.Stat(dataDir1)
	assert.True(t, os.IsNotExist(statErr))

	reloaded, err := registry.Load(settings.RegistryPath)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Nodes)
}

func TestResetHandsOffToMaintainWhenStartAfterSet(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	staged := filepath.Join(t.TempDir(), "antnode")
	require.NoError(t, os.WriteFile(staged, []byte("bin"), 0o755))

	result, err := Reset(context.Background(), Options{
		StartAfter: &maintain.Options{TargetCount: 2},
	}, reg, ctl, fakeWatcher{}, &fakeFetcher{path: staged}, nil, settings)

	require.NoError(t, err)
	require.NotNil(t, result.MaintainAfter)
	assert.Len(t, result.MaintainAfter.Succeeded, 2)
	assert.Len(t, reg.RunningNodes(), 2)
}
