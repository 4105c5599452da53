package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/store"
	"github.com/roach88/rxn/internal/testutil"
	"github.com/roach88/rxn/internal/visitor"
)

var guest = visitor.Identity{ID: "g:abc"}

func TestKey(t *testing.T) {
	assert.Equal(t, "rxn:event:42:g:abc", Key(ir.Event(42), "g:abc"))
	assert.Equal(t, "rxn:comment:7:u:9", Key(ir.Comment(3, 7), "u:9"))
}

func TestLedger_GetAbsentIsNone(t *testing.T) {
	l := New(store.NewMemory(), guest, nil)
	assert.Equal(t, ir.None, l.Get(context.Background(), ir.Event(1)))
}

func TestLedger_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := New(kv, guest, nil)
	target := ir.Event(1)

	l.Set(ctx, target, ir.Like)
	assert.Equal(t, ir.Like, l.Get(ctx, target))
	raw, ok, err := kv.Get(ctx, "rxn:event:1:g:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw)

	l.Set(ctx, target, ir.Dislike)
	raw, _, _ = kv.Get(ctx, "rxn:event:1:g:abc")
	assert.Equal(t, "-1", raw)

	l.Set(ctx, target, ir.None)
	_, ok, _ = kv.Get(ctx, "rxn:event:1:g:abc")
	assert.False(t, ok, "None must remove the entry")
	assert.Equal(t, ir.None, l.Get(ctx, target))
}

func TestLedger_ScopedByVisitor(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	a := New(kv, visitor.Identity{ID: "g:a"}, nil)
	b := New(kv, visitor.Identity{ID: "u:b"}, nil)

	a.Set(ctx, ir.Event(1), ir.Like)
	assert.Equal(t, ir.None, b.Get(ctx, ir.Event(1)))
}

func TestLedger_CommentParentIgnored(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory(), guest, nil)

	l.Set(ctx, ir.Comment(3, 7), ir.Dislike)
	assert.Equal(t, ir.Dislike, l.Get(ctx, ir.Comment(0, 7)))
}

func TestLedger_UnparsableIsNone(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, Key(ir.Event(1), guest.ID), "banana"))

	l := New(kv, guest, nil)
	assert.Equal(t, ir.None, l.Get(ctx, ir.Event(1)))
}

func TestLedger_InvalidValueIgnored(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := New(kv, guest, nil)

	l.Set(ctx, ir.Event(1), ir.Value(5))
	assert.Equal(t, 0, kv.Len())
}

func TestLedger_StorageFailureDegrades(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewFlakyKV(nil)
	l := New(kv, guest, nil)
	l.Set(ctx, ir.Event(1), ir.Like)

	kv.SetFailing(true)
	assert.Equal(t, ir.None, l.Get(ctx, ir.Event(1)))
	assert.NotPanics(t, func() { l.Set(ctx, ir.Event(1), ir.Dislike) })

	kv.SetFailing(false)
	assert.Equal(t, ir.Like, l.Get(ctx, ir.Event(1)), "failed write must not change the entry")
}

func TestLedger_All(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := New(kv, guest, nil)
	other := New(kv, visitor.Identity{ID: "g:other"}, nil)

	l.Set(ctx, ir.Event(2), ir.Dislike)
	l.Set(ctx, ir.Event(10), ir.Like)
	l.Set(ctx, ir.Comment(2, 5), ir.Like)
	other.Set(ctx, ir.Event(2), ir.Like)
	require.NoError(t, kv.Set(ctx, "visitor_id", "g:abc"))

	got := l.All(ctx)
	assert.Equal(t, []Entry{
		{Target: ir.Comment(0, 5), Value: ir.Like},
		{Target: ir.Event(10), Value: ir.Like},
		{Target: ir.Event(2), Value: ir.Dislike},
	}, got)
}

func TestLedger_AllWithoutLister(t *testing.T) {
	l := New(testutil.NewFlakyKV(nil), guest, nil)
	assert.Nil(t, l.All(context.Background()))
}
