package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func awaitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher event")
		return Event{}
	}
}

func TestDispatcherRunsMaintainTaskAndEmitsCompletion(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	staged := filepath.Join(t.TempDir(), "antnode")
	require.NoError(t, os.WriteFile(staged, []byte("bin"), 0o755))

	d := New(reg, ctl, fakeWatcher{}, &fakeFetcher{path: staged}, nil, settings)
	d.Start(context.Background())
	defer d.Stop()

	task := NewTask(KindMaintainNodes)
	task.MaintainOpts = maintain.Options{TargetCount: 2}
	d.Enqueue(task)

	ev := awaitEvent(t, d.Events())
	assert.Equal(t, EventStartNodesCompleted, ev.Kind)
	assert.Equal(t, task.ID, ev.TaskID)
	require.NotNil(t, ev.Batch)
	assert.Len(t, ev.Batch.Succeeded, 2)
}

func TestDispatcherLockReflectsInFlightTask(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)

	d := New(reg, ctl, fakeWatcher{}, &fakeFetcher{}, nil, settings)
	assert.Equal(t, LockNone, d.CurrentLock())
}

func TestDispatcherProcessesTasksInFIFOOrder(t *testing.T) {
	settings := newSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	reg.Nodes = append(reg.Nodes, &registry.NodeService{ServiceName: "antnode1", Status: registry.StatusRunning})
	ctl := control.NewFakeController(49200)
	require.NoError(t, ctl.Install(context.Background(), control.InstallContext{Label: "antnode1"}))
	require.NoError(t, ctl.Start(context.Background(), "antnode1"))

	d := New(reg, ctl, fakeWatcher{}, &fakeFetcher{}, nil, settings)
	d.Start(context.Background())
	defer d.Stop()

	first := NewTask(KindStopNodes)
	first.StopServiceNames = []string{"antnode1"}
	second := NewTask(KindStopNodes)
	second.StopServiceNames = []string{"antnode1"}

	d.Enqueue(first)
	d.Enqueue(second)

	ev1 := awaitEvent(t, d.Events())
	ev2 := awaitEvent(t, d.Events())

	assert.Equal(t, first.ID, ev1.TaskID)
	assert.Equal(t, second.ID, ev2.TaskID)
	assert.Equal(t, EventStopNodesCompleted, ev1.Kind)
}
