package dispatch

// Lock is the ephemeral advisory state exposed alongside the persisted
// registry: at most one registry-mutating task executes at a time, and
// the presentation layer consults this value before submitting a new
// one. The dispatcher itself never rejects an enqueue on this account —
// tasks always queue FIFO — but it keeps Lock current for callers that
// want to check it.
type Lock string

const (
	LockNone      Lock = "None"
	LockStarting  Lock = "Starting"
	LockStopping  Lock = "Stopping"
	LockResetting Lock = "Resetting"
	LockUpdating  Lock = "Updating"
)

func lockFor(kind Kind) Lock {
	switch kind {
	case KindMaintainNodes:
		return LockStarting
	case KindStopNodes:
		return LockStopping
	case KindResetNodes:
		return LockResetting
	case KindUpgradeNodes:
		return LockUpdating
	default:
		return LockNone
	}
}
