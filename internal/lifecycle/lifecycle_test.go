package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

type fakeWatcher struct {
	peerID     string
	listenAddr string
	err        error
}

func (w *fakeWatcher) WaitForPeerID(ctx context.Context, serviceName string) (string, string, error) {
	return w.peerID, w.listenAddr, w.err
}

func newTestRegistry(t *testing.T, node *registry.NodeService) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node_registry.yaml")
	reg := registry.NewEmpty(path)
	reg.Nodes = append(reg.Nodes, node)
	return reg
}

func TestStartTransitionsAddedToRunning(t *testing.T) {
	reg := newTestRegistry(t, &registry.NodeService{ServiceName: "antnode1", Status: registry.StatusAdded})
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))
	watcher := &fakeWatcher{peerID: "12D3KooW...", listenAddr: "/ip4/127.0.0.1/tcp/12000"}

	err := Start(context.Background(), reg, ctl, watcher, "antnode1")

	require.NoError(t, err)
	n := reg.FindNode("antnode1")
	assert.Equal(t, registry.StatusRunning, n.Status)
	require.NotNil(t, n.PeerID)
	assert.Equal(t, "12D3KooW...", *n.PeerID)
	assert.NotNil(t, n.PID)
}

func TestStartRefusesAlreadyRunning(t *testing.T) {
	reg := newTestRegistry(t, &registry.NodeService{ServiceName: "antnode1", Status: registry.StatusRunning})
	ctl := control.NewFakeController(49200)

	err := Start(context.Background(), reg, ctl, &fakeWatcher{}, "antnode1")

	require.Error(t, err)
	assert.True(t, ferrors.IsPrecondition(err))
}

func TestStopClearsPidPreservesPeerID(t *testing.T) {
	peerID := "12D3KooW..."
	pid := 4242
	reg := newTestRegistry(t, &registry.NodeService{
		ServiceName: "antnode1", Status: registry.StatusRunning, PID: &pid, PeerID: &peerID,
	})
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))
	require.NoError(t, ctl.Start(context.Background(), "antnode1"))

	err := Stop(context.Background(), reg, ctl, "antnode1")

	require.NoError(t, err)
	n := reg.FindNode("antnode1")
	assert.Equal(t, registry.StatusStopped, n.Status)
	assert.Nil(t, n.PID)
	require.NotNil(t, n.PeerID)
	assert.Equal(t, peerID, *n.PeerID)
}

func TestRemoveDeletesDirectoriesUnlessKept(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "marker"), []byte("x"), 0o644))

	reg := newTestRegistry(t, &registry.NodeService{
		ServiceName: "antnode1", Status: registry.StatusStopped, DataDirPath: dataDir, LogDirPath: logDir,
	})
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))

	err := Remove(context.Background(), reg, ctl, "antnode1", false)

	require.NoError(t, err)
	n := reg.FindNode("antnode1")
	assert.Equal(t, registry.StatusRemoved, n.Status)
	_, statErr := os.Stat(dataDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveIsIdempotentOnAlreadyRemoved(t *testing.T) {
	reg := newTestRegistry(t, &registry.NodeService{ServiceName: "antnode1", Status: registry.StatusRemoved})
	ctl := control.NewFakeController(49200)

	err := Remove(context.Background(), reg, ctl, "antnode1", true)

	assert.NoError(t, err)
}

func TestRemoveRejectsRunningNode(t *testing.T) {
	reg := newTestRegistry(t, &registry.NodeService{ServiceName: "antnode1", Status: registry.StatusRunning})
	ctl := control.NewFakeController(49200)

	err := Remove(context.Background(), reg, ctl, "antnode1", true)

	require.Error(t, err)
	assert.True(t, ferrors.IsPrecondition(err))
}
