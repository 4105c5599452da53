// Package reaction implements optimistic like/dislike toggling with
// reconciliation against a remote API.
//
// # Lifecycle
//
// A click goes through three stages:
//
//  1. Toggle: read the ledger, compute next = NextValue(prev, direction),
//     shift the displayed counts by ComputeDelta(prev, next), write next to
//     the ledger and return a Dispatch capturing (seq, target, prev, next).
//     Toggle never touches the network.
//  2. Reconcile: send the mutation for the dispatch. On failure apply the
//     dispatch's inverse delta, restore prev in the ledger and queue a
//     Notice. Rollback is always relative to the dispatch's own pair, so
//     overlapping reconciliations on one target each undo only themselves.
//  3. Refresh: fetch authoritative totals and overwrite the displayed counts.
//     Reconcile refreshes after both success and failure.
//
// # Concurrency
//
// All local state (displayed counts, ledger access, notices) is guarded by
// one mutex. API calls run outside it, so any number of reconciliations may
// be in flight while toggles continue to apply immediately.
package reaction

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/visitor"
)

// API is the remote side of reconciliation. *api.Client implements it.
type API interface {
	SetReaction(ctx context.Context, who visitor.Identity, target ir.Target, v ir.Value) error
	ClearReaction(ctx context.Context, who visitor.Identity, target ir.Target) error
	Totals(ctx context.Context, who visitor.Identity, target ir.Target) (ir.Counts, error)
}

// Ledger is the visitor's local record of reactions. *ledger.Ledger
// implements it.
type Ledger interface {
	Get(ctx context.Context, target ir.Target) ir.Value
	Set(ctx context.Context, target ir.Target, v ir.Value)
}

// Outcome is the result of one reconciliation.
type Outcome struct {
	Dispatch ir.Dispatch
	// Err is a *ReconcileError when the mutation failed and was rolled back.
	Err error
	// Counts and Value are the local state after reconciliation.
	Counts ir.Counts
	Value  ir.Value
	// Refreshed reports whether authoritative totals were installed.
	Refreshed bool
}

// View is what a UI renders for one target.
type View struct {
	Target ir.Target `json:"target"`
	Counts ir.Counts `json:"counts"`
	Mine   ir.Value  `json:"mine"`
}

// Controller owns the displayed counts and drives the reaction lifecycle for
// a single visitor.
type Controller struct {
	api     API
	ledger  Ledger
	who     visitor.Identity
	clock   Sequencer
	logger  *slog.Logger
	observe Observer

	mu      sync.Mutex
	counts  map[ir.Target]ir.Counts
	notices *noticeQueue
	wg      sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the sequencer used to stamp dispatches.
func WithClock(clock Sequencer) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers fn to receive lifecycle events.
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		c.observe = fn
	}
}

// New creates a controller acting as who.
func New(client API, book Ledger, who visitor.Identity, opts ...Option) *Controller {
	c := &Controller{
		api:     client,
		ledger:  book,
		who:     who,
		clock:   NewClock(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		counts:  make(map[ir.Target]ir.Counts),
		notices: newNoticeQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Visitor returns the identity the controller acts as.
func (c *Controller) Visitor() visitor.Identity {
	return c.who
}

// Seed installs counts from an entity payload, clamped at zero.
func (c *Controller) Seed(target ir.Target, counts ir.Counts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[target.Key()] = counts.Clamp()
}

// Forget discards the displayed counts for target. The ledger is untouched.
func (c *Controller) Forget(target ir.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, target.Key())
}

// View returns the displayed counts and the visitor's reaction for target.
// Unseeded targets show zero counts.
func (c *Controller) View(ctx context.Context, target ir.Target) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Target: target,
		Counts: c.counts[target.Key()],
		Mine:   c.ledger.Get(ctx, target),
	}
}

// Toggle applies a click optimistically and returns the dispatch to
// reconcile. direction must be Like or Dislike.
func (c *Controller) Toggle(ctx context.Context, target ir.Target, direction ir.Value) (ir.Dispatch, error) {
	if direction != ir.Like && direction != ir.Dislike {
		return ir.Dispatch{}, ErrInvalidDirection
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toggleLocked(ctx, target, direction), nil
}

// Clear toggles the visitor's current reaction off. It returns false without
// a dispatch when there is nothing to clear.
func (c *Controller) Clear(ctx context.Context, target ir.Target) (ir.Dispatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.ledger.Get(ctx, target)
	if current == ir.None {
		return ir.Dispatch{}, false
	}
	return c.toggleLocked(ctx, target, current), true
}

func (c *Controller) toggleLocked(ctx context.Context, target ir.Target, direction ir.Value) ir.Dispatch {
	prev := c.ledger.Get(ctx, target)
	next := ir.NextValue(prev, direction)

	key := target.Key()
	counts := c.counts[key].Apply(ir.ComputeDelta(prev, next))
	c.counts[key] = counts
	c.ledger.Set(ctx, target, next)

	d := ir.Dispatch{Seq: c.clock.Next(), Target: target, Prev: prev, Next: next}
	c.logger.Debug("toggle applied",
		"seq", d.Seq, "target", target.String(), "prev", prev.String(), "next", next.String())
	c.emit(Event{Type: EventToggle, Seq: d.Seq, Target: target, Prev: prev, Next: next, Counts: counts, Mine: next})
	return d
}

// Reconcile sends the mutation for d, rolls back on failure and refreshes
// totals in either case. It makes a single attempt.
func (c *Controller) Reconcile(ctx context.Context, d ir.Dispatch) Outcome {
	c.emit(Event{Type: EventRequest, Seq: d.Seq, Target: d.Target, Prev: d.Prev, Next: d.Next})

	var err error
	if d.Next == ir.None {
		err = c.api.ClearReaction(ctx, c.who, d.Target)
	} else {
		err = c.api.SetReaction(ctx, c.who, d.Target, d.Next)
	}

	out := Outcome{Dispatch: d}
	if err != nil {
		out.Err = &ReconcileError{Dispatch: d, Err: err}
		c.rollback(ctx, d, err)
	} else {
		c.emit(Event{Type: EventConfirmed, Seq: d.Seq, Target: d.Target, Prev: d.Prev, Next: d.Next})
	}

	_, refreshErr := c.refresh(ctx, d.Target, d.Seq)
	out.Refreshed = refreshErr == nil

	view := c.View(ctx, d.Target)
	out.Counts = view.Counts
	out.Value = view.Mine
	return out
}

func (c *Controller) rollback(ctx context.Context, d ir.Dispatch, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := d.Target.Key()
	counts := c.counts[key].Apply(d.Inverse())
	c.counts[key] = counts
	c.ledger.Set(ctx, d.Target, d.Prev)
	c.notices.Push(Notice{Seq: d.Seq, Dispatch: d, Message: cause.Error()})

	c.logger.Debug("reconcile failed, rolled back",
		"seq", d.Seq, "target", d.Target.String(), "prev", d.Prev.String(), "next", d.Next.String(), "error", cause)
	c.emit(Event{Type: EventRollback, Seq: d.Seq, Target: d.Target, Prev: d.Prev, Next: d.Next, Counts: counts, Mine: d.Prev, Err: cause})
}

// React toggles and reconciles in one blocking call.
func (c *Controller) React(ctx context.Context, target ir.Target, direction ir.Value) (Outcome, error) {
	d, err := c.Toggle(ctx, target, direction)
	if err != nil {
		return Outcome{}, err
	}
	return c.Reconcile(ctx, d), nil
}

// ReactAsync toggles immediately and reconciles on a goroutine. The channel
// receives exactly one Outcome and is then closed.
func (c *Controller) ReactAsync(ctx context.Context, target ir.Target, direction ir.Value) (ir.Dispatch, <-chan Outcome, error) {
	d, err := c.Toggle(ctx, target, direction)
	if err != nil {
		return ir.Dispatch{}, nil, err
	}

	ch := make(chan Outcome, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)
		ch <- c.Reconcile(ctx, d)
	}()
	return d, ch, nil
}

// Wait blocks until every reconciliation started by ReactAsync has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Refresh fetches authoritative totals for target and installs them. On
// failure the displayed counts are left untouched and the error is returned.
func (c *Controller) Refresh(ctx context.Context, target ir.Target) (ir.Counts, error) {
	return c.refresh(ctx, target, 0)
}

func (c *Controller) refresh(ctx context.Context, target ir.Target, seq int64) (ir.Counts, error) {
	totals, err := c.api.Totals(ctx, c.who, target)

	c.mu.Lock()
	defer c.mu.Unlock()

	key := target.Key()
	if err != nil {
		c.logger.Debug("totals fetch failed", "seq", seq, "target", target.String(), "error", err)
		c.emit(Event{Type: EventRefreshFailed, Seq: seq, Target: target, Counts: c.counts[key], Mine: c.ledger.Get(ctx, target), Err: err})
		return c.counts[key], err
	}

	totals = totals.Clamp()
	c.counts[key] = totals
	c.emit(Event{Type: EventRefresh, Seq: seq, Target: target, Counts: totals, Mine: c.ledger.Get(ctx, target)})
	return totals, nil
}

// Notices returns pending notices, oldest first.
func (c *Controller) Notices() []Notice {
	return c.notices.Pending()
}

// Dismiss removes the notice for seq.
func (c *Controller) Dismiss(seq int64) bool {
	return c.notices.Dismiss(seq)
}

// WaitNotice returns a channel that signals when a notice may have been
// queued.
func (c *Controller) WaitNotice() <-chan struct{} {
	return c.notices.Wait()
}

// Close stops queuing notices and wakes WaitNotice waiters. It does not wait
// for in-flight reconciliations; call Wait first for that.
func (c *Controller) Close() {
	c.notices.Close()
}

func (c *Controller) emit(e Event) {
	if c.observe != nil {
		c.observe(e)
	}
}
