package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/ledger"
	"github.com/roach88/rxn/internal/reaction"
	"github.com/roach88/rxn/internal/testutil"
)

// State is the final state assertions inspect.
type State struct {
	Ctx      context.Context
	Ledger   *ledger.Ledger
	View     func(context.Context, ir.Target) reaction.View
	Backend  *testutil.Backend
	Notices  []reaction.Notice
	Requests []testutil.Request
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string // Target the assertion is about, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Target != "" {
		fmt.Fprintf(&buf, " (%s)", e.Target)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
func EvaluateAssertions(st *State, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(st, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(st *State, a Assertion) error {
	switch a.Type {
	case AssertLedger:
		return assertLedger(st, a)
	case AssertCounts:
		return assertCounts(st, a)
	case AssertServer:
		return assertServer(st, a)
	case AssertNotices:
		return assertNotices(st, a)
	case AssertRequests:
		return assertRequests(st, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertLedger checks the visitor's recorded reaction.
func assertLedger(st *State, a Assertion) error {
	target, want, err := parsePair(a.Target, a.Expect)
	if err != nil {
		return err
	}
	if got := st.Ledger.Get(st.Ctx, target); got != want {
		return &AssertionError{Type: a.Type, Target: a.Target, Expected: want.String(), Actual: got.String()}
	}
	return nil
}

// assertCounts checks displayed counts. Omitted sides are not checked.
func assertCounts(st *State, a Assertion) error {
	target, err := ir.ParseTarget(a.Target)
	if err != nil {
		return err
	}
	got := st.View(st.Ctx, target).Counts

	wantLikes, wantDislikes := got.Likes, got.Dislikes
	if a.Likes != nil {
		wantLikes = *a.Likes
	}
	if a.Dislikes != nil {
		wantDislikes = *a.Dislikes
	}
	if got.Likes != wantLikes || got.Dislikes != wantDislikes {
		return &AssertionError{
			Type:     a.Type,
			Target:   a.Target,
			Expected: fmt.Sprintf("likes=%d dislikes=%d", wantLikes, wantDislikes),
			Actual:   fmt.Sprintf("likes=%d dislikes=%d", got.Likes, got.Dislikes),
		}
	}
	return nil
}

// assertServer checks the backend's record of the visitor's reaction.
func assertServer(st *State, a Assertion) error {
	target, want, err := parsePair(a.Target, a.Expect)
	if err != nil {
		return err
	}
	if got := st.Backend.Vote(target, st.Ledger.Visitor()); got != want {
		return &AssertionError{Type: a.Type, Target: a.Target, Expected: want.String(), Actual: got.String()}
	}
	return nil
}

// assertNotices checks the pending notice seqs, oldest first.
func assertNotices(st *State, a Assertion) error {
	got := make([]int64, len(st.Notices))
	for i, n := range st.Notices {
		got[i] = n.Seq
	}
	want := a.Seqs
	if want == nil {
		want = []int64{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%v", want), Actual: fmt.Sprintf("%v", got)}
	}
	return nil
}

// assertRequests checks the backend operations in arrival order. Failed
// operations are written with a "!" suffix, e.g. "set!".
func assertRequests(st *State, a Assertion) error {
	got := make([]string, len(st.Requests))
	for i, r := range st.Requests {
		got[i] = r.Op
		if r.Failed {
			got[i] += "!"
		}
	}
	want := a.Ops
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%v", want), Actual: fmt.Sprintf("%v", got)}
	}
	return nil
}
