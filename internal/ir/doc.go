// Package ir provides the shared value types for rxn reactions.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is one of None, Like, Dislike and nothing else
//   - Counts never go negative; Apply clamps at zero
//   - ComputeDelta is its own inverse: ComputeDelta(a, b) + ComputeDelta(b, a) == 0
//   - Logical sequence numbers (Seq) order dispatches, never wall-clock time
//   - All JSON tags use snake_case
package ir
