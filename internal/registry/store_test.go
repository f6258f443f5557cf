package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
)

func newTestNode(name string, number uint16, status ServiceStatus) *NodeService {
	return &NodeService{
		ServiceName:   name,
		Number:        number,
		User:          "svc",
		Version:       "0.96.4",
		RPCSocketAddr: "127.0.0.1:808" + string(rune('0'+number)),
		Status:        status,
		SafenodePath:  "/data/" + name + "/antnode",
		DataDirPath:   "/data/" + name,
		LogDirPath:    "/log/" + name,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")

	reg := NewEmpty(path)
	reg.Nodes = append(reg.Nodes,
		newTestNode("antnode1", 1, StatusRunning),
		newTestNode("antnode2", 2, StatusAdded),
	)
	reg.Nodes[0].Genesis = true
	reg.BootstrapPeers = []string{"/ip4/1.2.3.4/tcp/1234/p2p/abc"}
	reg.EnvironmentVariables = []EnvVar{{Name: "LOG_LEVEL", Value: "debug"}}
	status := NatPublic
	reg.NatStatusValue = &status

	require.NoError(t, reg.Save())

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, loaded.SavePath)
	assert.Len(t, loaded.Nodes, 2)
	assert.Equal(t, reg.Nodes[0].ServiceName, loaded.Nodes[0].ServiceName)
	assert.Equal(t, reg.Nodes[0].Genesis, loaded.Nodes[0].Genesis)
	assert.Equal(t, reg.Nodes[1].Status, loaded.Nodes[1].Status)
	assert.Equal(t, reg.BootstrapPeers, loaded.BootstrapPeers)
	assert.Equal(t, reg.EnvironmentVariables, loaded.EnvironmentVariables)
	assert.Equal(t, NatPublic, loaded.NatStatus())
}

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")

	reg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, path, reg.SavePath)
	assert.Empty(t, reg.Nodes)
	assert.Empty(t, reg.BootstrapPeers)
}

func TestLoadCorruptDocumentReturnsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: a registry\njust_some: other_doc\n"), 0o644))

	_, err := Load(path)

	require.Error(t, err)
	var mismatch *ferrors.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, path, mismatch.Path)
}

func TestSaveRequiresPath(t *testing.T) {
	reg := NewEmpty("")

	err := reg.Save()

	assert.Error(t, err)
}

func TestRefreshDowngradesStaleRunningNode(t *testing.T) {
	reg := NewEmpty(filepath.Join(t.TempDir(), "registry.yaml"))
	node := newTestNode("antnode1", 1, StatusRunning)
	pid := 4242
	node.PID = &pid
	node.ConnectedPeers = []string{"peerA"}
	reg.Nodes = append(reg.Nodes, node)

	ctl := &fakeRefreshController{running: map[string]bool{}}

	require.NoError(t, Refresh(context.Background(), reg, ctl, RefreshFlags{}))

	assert.Equal(t, StatusStopped, node.Status)
	assert.Nil(t, node.PID)
	assert.Nil(t, node.ConnectedPeers)
}

func TestRefreshKeepsLiveRunningNodeAndUpdatesPID(t *testing.T) {
	reg := NewEmpty(filepath.Join(t.TempDir(), "registry.yaml"))
	node := newTestNode("antnode1", 1, StatusRunning)
	reg.Nodes = append(reg.Nodes, node)

	ctl := &fakeRefreshController{running: map[string]bool{"antnode1": true}, pid: 777}

	require.NoError(t, Refresh(context.Background(), reg, ctl, RefreshFlags{}))

	assert.Equal(t, StatusRunning, node.Status)
	require.NotNil(t, node.PID)
	assert.Equal(t, 777, *node.PID)
}

func TestRefreshSkipNodesLeavesRegistryUntouched(t *testing.T) {
	reg := NewEmpty(filepath.Join(t.TempDir(), "registry.yaml"))
	node := newTestNode("antnode1", 1, StatusRunning)
	reg.Nodes = append(reg.Nodes, node)

	ctl := &fakeRefreshController{running: map[string]bool{}}

	require.NoError(t, Refresh(context.Background(), reg, ctl, RefreshFlags{SkipNodes: true}))

	assert.Equal(t, StatusRunning, node.Status)
}

type fakeRefreshController struct {
	running map[string]bool
	pid     int
}

func (f *fakeRefreshController) IsRunning(ctx context.Context, serviceName string) (bool, error) {
	return f.running[serviceName], nil
}

func (f *fakeRefreshController) GetPID(ctx context.Context, serviceName string) (int, error) {
	return f.pid, nil
}

func TestRegistryInvariantHelpers(t *testing.T) {
	reg := NewEmpty(filepath.Join(t.TempDir(), "registry.yaml"))
	n1 := newTestNode("antnode1", 1, StatusRunning)
	n1.Genesis = true
	n2 := newTestNode("antnode2", 2, StatusAdded)
	n3 := newTestNode("antnode3", 3, StatusRemoved)
	reg.Nodes = append(reg.Nodes, n1, n2, n3)

	assert.Equal(t, n1, reg.GenesisNode())
	assert.Equal(t, uint16(4), reg.NextNumber())
	assert.Len(t, reg.ActiveNodes(), 2)
	assert.Len(t, reg.RunningNodes(), 1)
	assert.Len(t, reg.DefinedNotRunning(), 1)
	assert.True(t, reg.RPCSocketAddrInUse(n1.RPCSocketAddr))
	assert.False(t, reg.RPCSocketAddrInUse("127.0.0.1:1"))
}

func TestNextNumberIsStableForeverAcrossRemovals(t *testing.T) {
	reg := NewEmpty(filepath.Join(t.TempDir(), "registry.yaml"))
	reg.Nodes = append(reg.Nodes,
		newTestNode("antnode1", 1, StatusRemoved),
		newTestNode("antnode2", 2, StatusRemoved),
	)

	assert.Equal(t, uint16(3), reg.NextNumber(), "numbers are never reclaimed after removal")
}

func TestMergeBootstrapPeersDeduplicatesAndPreservesOrder(t *testing.T) {
	reg := NewEmpty(filepath.Join(t.TempDir(), "registry.yaml"))
	reg.BootstrapPeers = []string{"/ip4/1.1.1.1/tcp/1/p2p/a"}

	changed := reg.MergeBootstrapPeers([]string{
		"/ip4/1.1.1.1/tcp/1/p2p/a",
		"/ip4/2.2.2.2/tcp/2/p2p/b",
	})

	assert.True(t, changed)
	assert.Equal(t, []string{
		"/ip4/1.1.1.1/tcp/1/p2p/a",
		"/ip4/2.2.2.2/tcp/2/p2p/b",
	}, reg.BootstrapPeers)
}

func TestTransitionTable(t *testing.T) {
	n := newTestNode("antnode1", 1, StatusAdded)

	require.NoError(t, n.Transition(StatusRunning))
	require.NoError(t, n.Transition(StatusStopped))
	require.NoError(t, n.Transition(StatusRunning))
	require.NoError(t, n.Transition(StatusStopped))
	require.NoError(t, n.Transition(StatusRemoved))

	err := n.Transition(StatusRunning)
	require.Error(t, err)
	var illegal *ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StatusRemoved, illegal.From)
}
