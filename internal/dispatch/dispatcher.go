package dispatch

import (
	"context"
	"sync"

	"github.com/harismuzaffer/antfleet/internal/config"
	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/fetch"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/lifecycle"
	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/natprobe"
	"github.com/harismuzaffer/antfleet/internal/registry"
	"github.com/harismuzaffer/antfleet/internal/reset"
	"github.com/harismuzaffer/antfleet/internal/upgrade"
	"github.com/harismuzaffer/antfleet/pkg/logging"
)

// Dispatcher is the single-consumer FIFO task queue. It owns the registry
// for the lifetime of the process: every registry-mutating call in this
// module is reached only through a Task processed here, which is what
// gives the fleet manager its single-writer discipline.
type Dispatcher struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []*Task
	lock  Lock
	done  bool

	reg      *registry.Registry
	ctl      control.Controller
	watcher  lifecycle.PeerIdentityWatcher
	fetcher  fetch.Fetcher
	prober   natprobe.Prober
	settings config.Settings

	maintainEngine *maintain.Engine

	events chan Event
	wg     sync.WaitGroup
}

// New returns a Dispatcher bound to reg and its collaborators. Call Start
// to begin processing tasks.
func New(
	reg *registry.Registry,
	ctl control.Controller,
	watcher lifecycle.PeerIdentityWatcher,
	fetcher fetch.Fetcher,
	prober natprobe.Prober,
	settings config.Settings,
) *Dispatcher {
	d := &Dispatcher{
		reg:            reg,
		ctl:            ctl,
		watcher:        watcher,
		fetcher:        fetcher,
		prober:         prober,
		settings:       settings,
		maintainEngine: maintain.NewEngine(),
		lock:           LockNone,
		events:         make(chan Event, 16),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// CurrentLock reports the advisory lock state, for a presentation layer
// that wants to refuse submitting a new task while one is in flight.
func (d *Dispatcher) CurrentLock() Lock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lock
}

// Events returns the channel completion events are published on. It is
// never closed while the dispatcher is running; it closes once Stop has
// drained the worker.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Enqueue appends task to the tail of the FIFO queue and wakes the
// worker. Tasks always queue regardless of the current lock state — the
// presentation layer is expected to consult CurrentLock before calling
// Enqueue if it wants to refuse new submissions while one is in flight.
func (d *Dispatcher) Enqueue(t *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	d.queue = append(d.queue, t)
	d.cond.Signal()
}

// Start launches the single worker goroutine that drains the queue in
// FIFO order until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop signals the worker to exit once the queue drains and waits for it,
// then closes the event channel.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.done = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
	close(d.events)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		task := d.next()
		if task == nil {
			return
		}
		d.execute(ctx, task)
	}
}

// next blocks until a task is available or the dispatcher is stopping.
func (d *Dispatcher) next() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.done {
		d.cond.Wait()
	}
	if len(d.queue) == 0 {
		return nil
	}
	task := d.queue[0]
	d.queue = d.queue[1:]
	return task
}

func (d *Dispatcher) execute(ctx context.Context, task *Task) {
	d.mu.Lock()
	d.lock = lockFor(task.Kind)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.lock = LockNone
		d.mu.Unlock()
	}()

	logging.Info("dispatch", "running task %s (%s)", task.ID, task.Kind)

	switch task.Kind {
	case KindMaintainNodes:
		d.runMaintain(ctx, task)
	case KindStopNodes:
		d.runStop(ctx, task)
	case KindResetNodes:
		d.runReset(ctx, task)
	case KindUpgradeNodes:
		d.runUpgrade(ctx, task)
	}
}

func (d *Dispatcher) publish(ev Event) {
	d.events <- ev
}

func (d *Dispatcher) runMaintain(ctx context.Context, task *Task) {
	batch, err := d.maintainEngine.Maintain(ctx, task.MaintainOpts, d.reg, d.ctl, d.watcher, d.fetcher, d.prober, d.settings)
	if err != nil && batch == nil {
		d.publish(Event{Kind: EventErrorScalingUpNodes, TaskID: task.ID, Raw: err})
		return
	}
	d.publish(Event{Kind: EventStartNodesCompleted, TaskID: task.ID, Batch: batch})
}

func (d *Dispatcher) runStop(ctx context.Context, task *Task) {
	result := ferrors.NewBatchResult()
	for _, name := range task.StopServiceNames {
		if err := lifecycle.Stop(ctx, d.reg, d.ctl, name); err != nil {
			result.AddFailure(name, err)
			continue
		}
		result.AddSuccess(name)
	}
	if result.HasFailures() && len(result.Succeeded) == 0 {
		d.publish(Event{Kind: EventErrorStoppingNodes, TaskID: task.ID, Raw: result.Err()})
		return
	}
	d.publish(Event{Kind: EventStopNodesCompleted, TaskID: task.ID, Batch: result})
}

func (d *Dispatcher) runReset(ctx context.Context, task *Task) {
	res, err := reset.Reset(ctx, task.ResetOpts, d.reg, d.ctl, d.watcher, d.fetcher, d.prober, d.settings)
	if err != nil && res == nil {
		d.publish(Event{Kind: EventErrorResettingNodes, TaskID: task.ID, Raw: err})
		return
	}
	d.publish(Event{
		Kind:         EventResetNodesCompleted,
		TaskID:       task.ID,
		TriggerStart: task.ResetOpts.StartAfter != nil,
		Batch:        res.Removed,
	})
}

func (d *Dispatcher) runUpgrade(ctx context.Context, task *Task) {
	batch, err := upgrade.Upgrade(ctx, task.UpgradeOpts, d.reg, d.ctl, d.watcher, d.fetcher, d.settings)
	if err != nil && batch == nil {
		d.publish(Event{Kind: EventErrorUpdatingNodes, TaskID: task.ID, Raw: err})
		return
	}
	d.publish(Event{Kind: EventUpdateNodesCompleted, TaskID: task.ID, Batch: batch})
}
