package dispatch

import (
	"github.com/google/uuid"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
)

// EventKind identifies what a completion event reports.
type EventKind string

const (
	EventStartNodesCompleted            EventKind = "StartNodesCompleted"
	EventStopNodesCompleted             EventKind = "StopNodesCompleted"
	EventResetNodesCompleted            EventKind = "ResetNodesCompleted"
	EventUpdateNodesCompleted           EventKind = "UpdateNodesCompleted"
	EventNodesStatsObtained             EventKind = "NodesStatsObtained"
	EventSuccessfullyDetectedNatStatus  EventKind = "SuccessfullyDetectedNatStatus"
	EventErrorWhileRunningNatDetection  EventKind = "ErrorWhileRunningNatDetection"
	EventErrorLoadingNodeRegistry       EventKind = "ErrorLoadingNodeRegistry"
	EventErrorScalingUpNodes            EventKind = "ErrorScalingUpNodes"
	EventErrorStoppingNodes             EventKind = "ErrorStoppingNodes"
	EventErrorUpdatingNodes             EventKind = "ErrorUpdatingNodes"
	EventErrorResettingNodes            EventKind = "ErrorResettingNodes"
)

// Event is emitted to dispatcher subscribers (the presentation layer) as
// each task completes, successfully or not.
type Event struct {
	Kind   EventKind
	TaskID uuid.UUID

	// TriggerStart mirrors ResetNodesCompleted{trigger_start}: whether the
	// reset that just completed also triggered a Maintenance Controller
	// hand-off.
	TriggerStart bool

	// Maintain/Stop/Reset/Upgrade carry the per-service batch result for a
	// successful task, whichever is relevant to Kind.
	Batch *ferrors.BatchResult

	// Raw is the underlying error for an ErrorXxx{raw} event.
	Raw error
}
