package harness

import (
	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/reaction"
)

// TraceEvent is one lifecycle step recorded while a scenario runs.
// Empty string fields and a nil Counts are omitted from golden traces.
type TraceEvent struct {
	Type   string     `json:"type"`
	Seq    int64      `json:"seq"`
	Target string     `json:"target"`
	Prev   string     `json:"prev,omitempty"`
	Next   string     `json:"next,omitempty"`
	Counts *ir.Counts `json:"counts,omitempty"`
	Mine   string     `json:"mine,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Visitor is the identity the scenario ran as.
	Visitor ir.VisitorID `json:"visitor"`

	// Trace contains every lifecycle event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record converts a controller event into a trace entry. Which fields are
// kept depends on the event type, so traces stay minimal.
func (r *Result) record(e reaction.Event) {
	te := TraceEvent{
		Type:   string(e.Type),
		Seq:    e.Seq,
		Target: e.Target.String(),
	}

	switch e.Type {
	case reaction.EventToggle, reaction.EventRequest, reaction.EventConfirmed, reaction.EventRollback:
		te.Prev = e.Prev.String()
		te.Next = e.Next.String()
	}

	switch e.Type {
	case reaction.EventToggle, reaction.EventRollback, reaction.EventRefresh, reaction.EventRefreshFailed:
		counts := e.Counts
		te.Counts = &counts
		te.Mine = e.Mine.String()
	}

	if e.Err != nil {
		te.Error = e.Err.Error()
	}
	r.Trace = append(r.Trace, te)
}
