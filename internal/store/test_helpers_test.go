package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustSet writes a key or fails the test.
func mustSet(t *testing.T, kv KV, key, value string) {
	t.Helper()
	if err := kv.Set(context.Background(), key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}
