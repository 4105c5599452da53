// Package store provides the persistent key-value store behind the reaction
// ledger and visitor identity.
//
// Two implementations satisfy KV:
//   - Store: SQLite-backed, survives restarts (the CLI's --db file)
//   - Memory: in-process map, for tests and ephemeral sessions
//
// # Critical Patterns
//
// Deterministic listing:
//   - Entries are listed ORDER BY key COLLATE BINARY
//   - updated_seq is a logical write counter, never a timestamp
//
// Error policy:
//   - Store methods always return errors; swallowing them is the caller's
//     decision (the ledger treats failures as "no reaction")
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
