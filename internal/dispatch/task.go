// Package dispatch implements the Task Dispatcher: the single-consumer
// FIFO queue that serializes every registry-mutating operation behind one
// advisory lock, and the typed completion events it emits back to the
// presentation layer. Grounded on the teacher's
// internal/reconciler/queue.go (a sync.Cond-based FIFO work queue,
// adapted here to one task in flight rather than a worker pool, per the
// single-writer requirement) and internal/reconciler/manager.go's
// start/stop/event-publish shape.
package dispatch

import (
	"github.com/google/uuid"

	"github.com/harismuzaffer/antfleet/internal/maintain"
	"github.com/harismuzaffer/antfleet/internal/reset"
	"github.com/harismuzaffer/antfleet/internal/upgrade"
)

// Kind identifies the operation a Task requests.
type Kind string

const (
	KindMaintainNodes Kind = "MaintainNodes"
	KindStopNodes     Kind = "StopNodes"
	KindResetNodes    Kind = "ResetNodes"
	KindUpgradeNodes  Kind = "UpgradeNodes"
)

// Task is one unit of work submitted to the dispatcher. Exactly one of
// the payload fields is populated, matching Kind.
type Task struct {
	ID   uuid.UUID
	Kind Kind

	MaintainOpts     maintain.Options
	StopServiceNames []string
	ResetOpts        reset.Options
	UpgradeOpts      upgrade.Options
}

// NewTask constructs a Task of the given kind with a fresh correlation id.
// Callers populate the relevant payload field before submitting it.
func NewTask(kind Kind) *Task {
	return &Task{ID: uuid.New(), Kind: kind}
}
