package reaction

import "github.com/roach88/rxn/internal/ir"

// EventType names a step in a target's reaction lifecycle.
type EventType string

const (
	// EventToggle is an optimistic toggle applied locally.
	EventToggle EventType = "toggle"
	// EventRequest is a mutation sent to the API.
	EventRequest EventType = "request"
	// EventConfirmed is a mutation the API accepted.
	EventConfirmed EventType = "confirmed"
	// EventRollback is a failed mutation undone locally.
	EventRollback EventType = "rollback"
	// EventRefresh is authoritative counts installed from the API.
	EventRefresh EventType = "refresh"
	// EventRefreshFailed is a totals fetch that left counts untouched.
	EventRefreshFailed EventType = "refresh_failed"
)

// Event is reported to an Observer. Counts and Mine are the local state
// after the step. Seq is zero for refreshes that were not part of a
// reconciliation.
type Event struct {
	Type   EventType
	Seq    int64
	Target ir.Target
	Prev   ir.Value
	Next   ir.Value
	Counts ir.Counts
	Mine   ir.Value
	Err    error
}

// Observer receives lifecycle events. It may be called from several
// goroutines when reconciliations overlap. Toggle, rollback and refresh
// events are delivered while the controller lock is held, so an Observer
// must not call back into the Controller.
type Observer func(Event)
