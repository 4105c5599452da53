package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/rxn/internal/store"
)

// ErrStorageUnavailable is returned by FlakyKV while it is failing.
var ErrStorageUnavailable = errors.New("storage unavailable")

// FlakyKV wraps a KV and fails every call while Failing is set.
type FlakyKV struct {
	inner store.KV

	mu      sync.Mutex
	failing bool
}

// NewFlakyKV wraps inner (an empty store.Memory when nil).
func NewFlakyKV(inner store.KV) *FlakyKV {
	if inner == nil {
		inner = store.NewMemory()
	}
	return &FlakyKV{inner: inner}
}

// SetFailing toggles failure mode.
func (f *FlakyKV) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *FlakyKV) isFailing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing
}

// Get implements store.KV.
func (f *FlakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.isFailing() {
		return "", false, ErrStorageUnavailable
	}
	return f.inner.Get(ctx, key)
}

// Set implements store.KV.
func (f *FlakyKV) Set(ctx context.Context, key, value string) error {
	if f.isFailing() {
		return ErrStorageUnavailable
	}
	return f.inner.Set(ctx, key, value)
}

// Remove implements store.KV.
func (f *FlakyKV) Remove(ctx context.Context, key string) error {
	if f.isFailing() {
		return ErrStorageUnavailable
	}
	return f.inner.Remove(ctx, key)
}
