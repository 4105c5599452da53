package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/visitor"
)

// ErrBackendDown is returned by Backend calls that were told to fail.
var ErrBackendDown = errors.New("backend unavailable")

// Request operations recorded by Backend.
const (
	OpSet    = "set"
	OpClear  = "clear"
	OpTotals = "totals"
)

// Request is one call observed by Backend, in arrival order.
type Request struct {
	Op      string       `json:"op"`
	Target  ir.Target    `json:"target"`
	Value   ir.Value     `json:"value"`
	Visitor ir.VisitorID `json:"visitor"`
	Token   string       `json:"-"`
	Failed  bool         `json:"failed"`
}

// Backend is a scripted reaction server. It applies the same accounting the
// real server does: every visitor contributes at most one like or one
// dislike per target, on top of a fixed base contributed by "other" visitors.
//
// Backend satisfies reaction.API directly and serves the REST routes via
// Handler for HTTP-level tests.
//
// Thread-safety: all methods are safe for concurrent use.
type Backend struct {
	mu            sync.Mutex
	base          map[ir.Target]ir.Counts
	votes         map[ir.Target]map[ir.VisitorID]ir.Value
	failMutations int // remaining injected failures; negative means always
	failTotals    bool
	requests      []Request
	gate          chan struct{}
	inflight      int
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{
		base:  make(map[ir.Target]ir.Counts),
		votes: make(map[ir.Target]map[ir.VisitorID]ir.Value),
	}
}

// SetOthers sets the counts contributed by visitors other than the ones
// that call the backend.
func (b *Backend) SetOthers(target ir.Target, counts ir.Counts) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base[target.Key()] = counts.Clamp()
}

// SetVote records who's reaction directly, without logging a request.
func (b *Backend) SetVote(target ir.Target, who ir.VisitorID, v ir.Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setVoteLocked(target, who, v)
}

// Vote returns who's recorded reaction.
func (b *Backend) Vote(target ir.Target, who ir.VisitorID) ir.Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.votes[target.Key()][who]
}

// TotalsOf returns the authoritative counts without logging a request.
func (b *Backend) TotalsOf(target ir.Target) ir.Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalsLocked(target)
}

// FailMutations makes the next n set/clear calls fail. n < 0 fails all of
// them until FailMutations(0).
func (b *Backend) FailMutations(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failMutations = n
}

// FailTotals makes totals calls fail while set.
func (b *Backend) FailTotals(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failTotals = fail
}

// Block holds every subsequent call until Unblock.
func (b *Backend) Block() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate == nil {
		b.gate = make(chan struct{})
	}
}

// Unblock releases all held calls.
func (b *Backend) Unblock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

// InFlight returns the number of calls currently held by Block.
func (b *Backend) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inflight
}

// WaitInFlight polls until n calls are held or the timeout passes.
func (b *Backend) WaitInFlight(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.InFlight() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// Requests returns a copy of the request log.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// SetReaction records a like or dislike for who.
func (b *Backend) SetReaction(ctx context.Context, who visitor.Identity, target ir.Target, v ir.Value) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.consumeFailureLocked()
	b.log(Request{Op: OpSet, Target: target, Value: v, Visitor: who.ID, Token: who.Token, Failed: failed})
	if failed {
		return ErrBackendDown
	}
	b.setVoteLocked(target, who.ID, v)
	return nil
}

// ClearReaction removes who's reaction.
func (b *Backend) ClearReaction(ctx context.Context, who visitor.Identity, target ir.Target) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.consumeFailureLocked()
	b.log(Request{Op: OpClear, Target: target, Visitor: who.ID, Token: who.Token, Failed: failed})
	if failed {
		return ErrBackendDown
	}
	b.setVoteLocked(target, who.ID, ir.None)
	return nil
}

// Totals returns the authoritative counts.
func (b *Backend) Totals(ctx context.Context, who visitor.Identity, target ir.Target) (ir.Counts, error) {
	if err := b.wait(ctx); err != nil {
		return ir.Counts{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.log(Request{Op: OpTotals, Target: target, Visitor: who.ID, Token: who.Token, Failed: b.failTotals})
	if b.failTotals {
		return ir.Counts{}, ErrBackendDown
	}
	return b.totalsLocked(target), nil
}

// wait blocks while the gate is closed.
func (b *Backend) wait(ctx context.Context) error {
	b.mu.Lock()
	gate := b.gate
	if gate != nil {
		b.inflight++
	}
	b.mu.Unlock()

	if gate == nil {
		return nil
	}
	defer func() {
		b.mu.Lock()
		b.inflight--
		b.mu.Unlock()
	}()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) consumeFailureLocked() bool {
	switch {
	case b.failMutations < 0:
		return true
	case b.failMutations > 0:
		b.failMutations--
		return true
	}
	return false
}

func (b *Backend) log(r Request) {
	b.requests = append(b.requests, r)
}

func (b *Backend) setVoteLocked(target ir.Target, who ir.VisitorID, v ir.Value) {
	key := target.Key()
	if v == ir.None {
		delete(b.votes[key], who)
		return
	}
	if b.votes[key] == nil {
		b.votes[key] = make(map[ir.VisitorID]ir.Value)
	}
	b.votes[key][who] = v
}

func (b *Backend) totalsLocked(target ir.Target) ir.Counts {
	key := target.Key()
	c := b.base[key]
	for _, v := range b.votes[key] {
		c = c.Apply(ir.ComputeDelta(ir.None, v))
	}
	return c
}

// Handler serves the REST reaction routes backed by this Backend:
//
//	POST   /events/{id}/like | /dislike
//	DELETE /events/{id}/reaction
//	GET    /events/{id}/reactions
//
// and the same four under /events/{eid}/comments/{cid}/. Mutations require
// an X-Visitor header; the Authorization bearer token is recorded.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"/events/{eid}", "/events/{eid}/comments/{cid}"} {
		mux.HandleFunc("POST "+prefix+"/like", b.serveSet(ir.Like))
		mux.HandleFunc("POST "+prefix+"/dislike", b.serveSet(ir.Dislike))
		mux.HandleFunc("DELETE "+prefix+"/reaction", b.serveClear)
		mux.HandleFunc("GET "+prefix+"/reactions", b.serveTotals)
	}
	return mux
}

func (b *Backend) serveSet(v ir.Value) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, who, ok := parseRequest(w, r, true)
		if !ok {
			return
		}
		if err := b.SetReaction(r.Context(), who, target, v); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *Backend) serveClear(w http.ResponseWriter, r *http.Request) {
	target, who, ok := parseRequest(w, r, true)
	if !ok {
		return
	}
	if err := b.ClearReaction(r.Context(), who, target); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) serveTotals(w http.ResponseWriter, r *http.Request) {
	target, who, ok := parseRequest(w, r, false)
	if !ok {
		return
	}
	counts, err := b.Totals(r.Context(), who, target)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(counts)
}

func parseRequest(w http.ResponseWriter, r *http.Request, needVisitor bool) (ir.Target, visitor.Identity, bool) {
	eid, err := strconv.ParseInt(r.PathValue("eid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return ir.Target{}, visitor.Identity{}, false
	}
	target := ir.Event(eid)
	if raw := r.PathValue("cid"); raw != "" {
		cid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid comment id")
			return ir.Target{}, visitor.Identity{}, false
		}
		target = ir.Comment(eid, cid)
	}

	who := visitor.Identity{
		ID:    ir.VisitorID(r.Header.Get("X-Visitor")),
		Token: strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
	}
	if needVisitor && who.ID == "" {
		writeError(w, http.StatusBadRequest, "missing X-Visitor header")
		return ir.Target{}, visitor.Identity{}, false
	}
	return target, who, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
