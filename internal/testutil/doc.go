// Package testutil provides deterministic helpers and a scripted reaction
// backend for tests and the scenario harness.
//
// Nothing here is used by production code paths.
package testutil
