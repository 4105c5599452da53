// Package harness replays reaction scenarios against a scripted backend.
//
// The harness drives the real reaction.Controller, ledger and SQLite store.
// Only the remote API is replaced, by testutil.Backend, which applies the
// server's accounting rule so success paths can be checked against it.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: unlike_fails
//	description: "What this scenario validates"
//	visitor:
//	  guest_id: abc123
//	targets:
//	  - target: event:1
//	    mine: like
//	    counts: { likes: 6, dislikes: 2 }
//	server:
//	  - target: event:1
//	    others: { likes: 5, dislikes: 2 }
//	    mine: like
//	steps:
//	  - toggle: { target: event:1, direction: like, hold: true }
//	  - resolve: { seq: 1, fail: true }
//	  - refresh: { target: event:1 }
//	assertions:
//	  - type: ledger
//	    target: event:1
//	    expect: like
//	  - type: counts
//	    target: event:1
//	    likes: 6
//	  - type: notices
//	    seqs: [1]
//
// # Steps
//
//   - toggle: click like or dislike; reconciled at once unless hold is set
//   - clear: remove the current reaction, if any, and reconcile
//   - resolve: reconcile a held dispatch by seq, optionally failing
//   - refresh: fetch authoritative totals, optionally failing
//   - dismiss: dismiss the notice for a seq
//
// # Assertion Types
//
//   - ledger: the visitor's recorded reaction to a target
//   - counts: displayed likes and/or dislikes for a target
//   - server: the backend's record of the visitor's reaction
//   - notices: pending notice seqs, oldest first
//   - requests: backend operations in arrival order ("set", "clear",
//     "totals"; a trailing "!" marks a failed call)
//
// # Deterministic Testing
//
// Dispatch seqs come from testutil.DeterministicClock and restart at 1 for
// every scenario; guest ids come from testutil.FixedIDGenerator. Each
// scenario gets a fresh in-memory SQLite database. Traces are therefore
// identical across runs and can be compared with golden files.
package harness
