package reaction

import (
	"slices"
	"sync"

	"github.com/roach88/rxn/internal/ir"
)

// Notice is a transient, dismissible error record produced by a failed
// reconciliation. It is keyed by the seq of the dispatch that failed.
type Notice struct {
	Seq      int64       `json:"seq"`
	Dispatch ir.Dispatch `json:"dispatch"`
	Message  string      `json:"message"`
}

// noticeQueue is a thread-safe FIFO of pending notices.
//
// The queue is unbounded: every failed reconciliation produces exactly one
// notice and nothing is dropped until the UI dismisses it.
//
// The queue uses a channel for signaling so UIs can wait for new notices
// with select alongside their own context.
type noticeQueue struct {
	mu      sync.Mutex
	notices []Notice
	closed  bool
	signal  chan struct{} // Signals notice availability (buffered, size 1)
}

func newNoticeQueue() *noticeQueue {
	return &noticeQueue{
		signal: make(chan struct{}, 1),
	}
}

// Push adds a notice to the back of the queue.
// Returns false if the queue is closed.
func (q *noticeQueue) Push(n Notice) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.notices = append(q.notices, n)

	// Non-blocking; a buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Pending returns a copy of the queued notices, oldest first.
func (q *noticeQueue) Pending() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.notices)
}

// Dismiss removes the notice for seq. Returns false if there is none.
func (q *noticeQueue) Dismiss(seq int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := slices.IndexFunc(q.notices, func(n Notice) bool { return n.Seq == seq })
	if i < 0 {
		return false
	}
	q.notices = slices.Delete(q.notices, i, i+1)
	return true
}

// Wait returns a channel that signals when notices may be available.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // read Pending
//	}
func (q *noticeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending notices.
func (q *noticeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.notices)
}

// Close stops accepting notices and wakes any waiters.
func (q *noticeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
