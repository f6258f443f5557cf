package provision

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
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

type fakeFetcher struct {
	path string
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) (string, error) {
	return f.path, nil
}

func newTestSettings(t *testing.T) config.Settings {
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
	require.NoError(t, os.WriteFile(path, []byte("fake binary"), 0o755))
	return path
}

func TestAddProvisionsThreeNodes(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	fetcher := &fakeFetcher{path: stagedBinary(t)}

	result, err := Add(context.Background(), AddOptions{
		Count:       3,
		ServiceUser: "",
	}, reg, ctl, fetcher, settings)

	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 3)
	assert.False(t, result.HasFailures())
	assert.Len(t, reg.Nodes, 3)
	assert.Equal(t, "antnode1", reg.Nodes[0].ServiceName)
	assert.Equal(t, "antnode2", reg.Nodes[1].ServiceName)
	assert.Equal(t, "antnode3", reg.Nodes[2].ServiceName)
	assert.NotEqual(t, reg.Nodes[0].RPCSocketAddr, reg.Nodes[1].RPCSocketAddr)

	// staged binary removed after the loop
	_, statErr := os.Stat(fetcher.path)
	assert.True(t, os.IsNotExist(statErr))

	// persisted to disk
	reloaded, err := registry.Load(settings.RegistryPath)
	require.NoError(t, err)
	assert.Len(t, reloaded.Nodes, 3)
}

func TestAddRejectsGenesisWhenOneAlreadyExists(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	reg.Nodes = append(reg.Nodes, &registry.NodeService{ServiceName: "antnode1", Number: 1, Genesis: true, Status: registry.StatusAdded})
	ctl := control.NewFakeController(49200)
	fetcher := &fakeFetcher{path: stagedBinary(t)}

	_, err := Add(context.Background(), AddOptions{Count: 1, Genesis: true}, reg, ctl, fetcher, settings)

	require.Error(t, err)
	assert.True(t, ferrors.IsPrecondition(err))
}

func TestAddRejectsCustomPortWithMultipleNodes(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	fetcher := &fakeFetcher{path: stagedBinary(t)}
	port := uint16(12000)

	_, err := Add(context.Background(), AddOptions{Count: 2, NodePort: &port}, reg, ctl, fetcher, settings)

	require.Error(t, err)
	assert.Empty(t, reg.Nodes)
}

func TestAddContinuesPastInstallFailure(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	ctl.FailInstall["antnode2"] = assertErr{"boom"}
	fetcher := &fakeFetcher{path: stagedBinary(t)}

	result, err := Add(context.Background(), AddOptions{Count: 3}, reg, ctl, fetcher, settings)

	require.Error(t, err)
	assert.ElementsMatch(t, []string{"antnode1", "antnode3"}, result.Succeeded)
	assert.Contains(t, result.Failed, "antnode2")
	assert.Len(t, reg.Nodes, 2)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
