package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/ledger"
	"github.com/roach88/rxn/internal/reaction"
	"github.com/roach88/rxn/internal/store"
	"github.com/roach88/rxn/internal/testutil"
	"github.com/roach88/rxn/internal/visitor"
)

// DefaultGuestID is the generated part of the guest id when a scenario
// doesn't choose one.
const DefaultGuestID = "harness"

// Harness is the test execution engine.
// It runs one scenario against a scripted backend with a deterministic clock.
type Harness struct {
	store   *store.Store
	backend *testutil.Backend
	ledger  *ledger.Ledger
	ctl     *reaction.Controller
	held    map[int64]ir.Dispatch
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and resolve the visitor
// 2. Seed local state and the scripted backend
// 3. Execute steps in order
// 4. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	guestID := scenario.Visitor.GuestID
	if guestID == "" {
		guestID = DefaultGuestID
	}
	who, err := visitor.Resolve(ctx, st, scenario.Visitor.Token, testutil.NewFixedIDGenerator(guestID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve visitor: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	result := NewResult()
	result.Visitor = who.ID

	backend := testutil.NewBackend()
	book := ledger.New(st, who, logger)
	h := &Harness{
		store:   st,
		backend: backend,
		ledger:  book,
		ctl: reaction.New(backend, book, who,
			reaction.WithClock(testutil.NewDeterministicClock()),
			reaction.WithLogger(logger),
			reaction.WithObserver(result.record),
		),
		held:   make(map[int64]ir.Dispatch),
		logger: logger,
	}

	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed state: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, errMsg := range EvaluateAssertions(h.state(ctx), scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	for _, t := range s.Targets {
		target, mine, err := parsePair(t.Target, t.Mine)
		if err != nil {
			return err
		}
		h.ledger.Set(ctx, target, mine)
		h.ctl.Seed(target, t.Counts.counts())
	}
	for _, sv := range s.Server {
		target, mine, err := parsePair(sv.Target, sv.Mine)
		if err != nil {
			return err
		}
		h.backend.SetOthers(target, sv.Others.counts())
		h.backend.SetVote(target, h.ledger.Visitor(), mine)
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Toggle != nil:
		target, dir, err := parsePair(step.Toggle.Target, step.Toggle.Direction)
		if err != nil {
			return err
		}
		d, err := h.ctl.Toggle(ctx, target, dir)
		if err != nil {
			return err
		}
		if step.Toggle.Hold {
			h.held[d.Seq] = d
			return nil
		}
		h.reconcile(ctx, d, step.Toggle.Fail, step.Toggle.FailTotals)

	case step.Clear != nil:
		target, err := ir.ParseTarget(step.Clear.Target)
		if err != nil {
			return err
		}
		if d, ok := h.ctl.Clear(ctx, target); ok {
			h.reconcile(ctx, d, step.Clear.Fail, step.Clear.FailTotals)
		}

	case step.Resolve != nil:
		d, ok := h.held[step.Resolve.Seq]
		if !ok {
			return fmt.Errorf("resolve: no held dispatch with seq %d", step.Resolve.Seq)
		}
		delete(h.held, step.Resolve.Seq)
		h.reconcile(ctx, d, step.Resolve.Fail, step.Resolve.FailTotals)

	case step.Refresh != nil:
		target, err := ir.ParseTarget(step.Refresh.Target)
		if err != nil {
			return err
		}
		h.backend.FailTotals(step.Refresh.Fail)
		// A failed refresh is tolerated and visible in the trace.
		_, _ = h.ctl.Refresh(ctx, target)
		h.backend.FailTotals(false)

	case step.Dismiss != nil:
		if !h.ctl.Dismiss(step.Dismiss.Seq) {
			return fmt.Errorf("dismiss: no notice with seq %d", step.Dismiss.Seq)
		}
	}
	return nil
}

// reconcile resolves d with the requested server behavior. Failure
// injection is scoped to this one reconciliation.
func (h *Harness) reconcile(ctx context.Context, d ir.Dispatch, fail, failTotals bool) {
	if fail {
		h.backend.FailMutations(1)
	}
	h.backend.FailTotals(failTotals)
	h.ctl.Reconcile(ctx, d)
	h.backend.FailMutations(0)
	h.backend.FailTotals(false)
}

// state captures what assertions inspect.
func (h *Harness) state(ctx context.Context) *State {
	return &State{
		Ctx:      ctx,
		Ledger:   h.ledger,
		View:     h.ctl.View,
		Backend:  h.backend,
		Notices:  h.ctl.Notices(),
		Requests: h.backend.Requests(),
	}
}

func parsePair(target, value string) (ir.Target, ir.Value, error) {
	t, err := ir.ParseTarget(target)
	if err != nil {
		return ir.Target{}, ir.None, err
	}
	v, err := ir.ParseValue(value)
	if err != nil {
		return ir.Target{}, ir.None, err
	}
	return t, v, nil
}
