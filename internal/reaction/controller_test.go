package reaction

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/ledger"
	"github.com/roach88/rxn/internal/store"
	"github.com/roach88/rxn/internal/testutil"
	"github.com/roach88/rxn/internal/visitor"
)

var guest = visitor.Identity{ID: "g:testvisitor0000"}

type fixture struct {
	ctl     *Controller
	backend *testutil.Backend
	ledger  *ledger.Ledger
	kv      *testutil.FlakyKV
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	kv := testutil.NewFlakyKV(store.NewMemory())
	book := ledger.New(kv, guest, nil)
	backend := testutil.NewBackend()
	opts = append([]Option{WithClock(testutil.NewDeterministicClock())}, opts...)
	return &fixture{
		ctl:     New(backend, book, guest, opts...),
		backend: backend,
		ledger:  book,
		kv:      kv,
	}
}

// given puts the target in a consistent starting state: the visitor holds
// mine both locally and on the server, others contributes the rest.
func (f *fixture) given(target ir.Target, others ir.Counts, mine ir.Value) ir.Counts {
	f.backend.SetOthers(target, others)
	f.backend.SetVote(target, guest.ID, mine)
	f.ledger.Set(context.Background(), target, mine)
	start := f.backend.TotalsOf(target)
	f.ctl.Seed(target, start)
	return start
}

func TestScenarioA_LikeFromNoneSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ir.Event(1)
	f.given(target, ir.Counts{Likes: 5, Dislikes: 2}, ir.None)

	d, err := f.ctl.Toggle(ctx, target, ir.Like)
	require.NoError(t, err)
	assert.Equal(t, ir.Dispatch{Seq: 1, Target: target, Prev: ir.None, Next: ir.Like}, d)

	view := f.ctl.View(ctx, target)
	assert.Equal(t, ir.Like, view.Mine)
	assert.Equal(t, ir.Counts{Likes: 6, Dislikes: 2}, view.Counts)

	// Someone else reacts meanwhile; the refetch must install server values.
	f.backend.SetOthers(target, ir.Counts{Likes: 9, Dislikes: 4})

	out := f.ctl.Reconcile(ctx, d)
	require.NoError(t, out.Err)
	assert.True(t, out.Refreshed)
	assert.Equal(t, ir.Counts{Likes: 10, Dislikes: 4}, out.Counts)
	assert.Equal(t, ir.Like, out.Value)
	assert.Empty(t, f.ctl.Notices())
}

func TestScenarioB_UnlikeFailsAndRollsBack(t *testing.T) {
	ctx := context.Background()

	t.Run("with refresh", func(t *testing.T) {
		f := newFixture(t)
		target := ir.Event(1)
		start := f.given(target, ir.Counts{Likes: 5, Dislikes: 2}, ir.Like)

		d, err := f.ctl.Toggle(ctx, target, ir.Like)
		require.NoError(t, err)
		assert.Equal(t, ir.None, d.Next)
		assert.Equal(t, ir.Counts{Likes: 5, Dislikes: 2}, f.ctl.View(ctx, target).Counts)

		f.backend.FailMutations(1)
		out := f.ctl.Reconcile(ctx, d)

		require.Error(t, out.Err)
		assert.True(t, IsRolledBack(out.Err))
		assert.ErrorIs(t, out.Err, testutil.ErrBackendDown)
		assert.True(t, out.Refreshed, "totals are refetched after failure too")
		assert.Equal(t, ir.Like, out.Value)
		assert.Equal(t, start, out.Counts)
	})

	t.Run("without refresh", func(t *testing.T) {
		f := newFixture(t)
		target := ir.Event(1)
		start := f.given(target, ir.Counts{Likes: 5, Dislikes: 2}, ir.Like)
		f.backend.FailMutations(1)
		f.backend.FailTotals(true)

		out, err := f.ctl.React(ctx, target, ir.Like)
		require.NoError(t, err)
		require.Error(t, out.Err)
		assert.False(t, out.Refreshed)
		assert.Equal(t, ir.Like, out.Value)
		assert.Equal(t, start, out.Counts, "rollback alone restores the original counts")
	})
}

func TestScenarioC_SideSwitchSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ir.Comment(3, 7)
	f.given(target, ir.Counts{Likes: 4, Dislikes: 2}, ir.Like)

	d, err := f.ctl.Toggle(ctx, target, ir.Dislike)
	require.NoError(t, err)
	assert.Equal(t, ir.Like, d.Prev)
	assert.Equal(t, ir.Dislike, d.Next)

	optimistic := f.ctl.View(ctx, target).Counts
	assert.Equal(t, ir.Counts{Likes: 4, Dislikes: 3}, optimistic)

	out := f.ctl.Reconcile(ctx, d)
	require.NoError(t, out.Err)
	assert.Equal(t, optimistic, out.Counts, "server confirms the optimistic counts")
	assert.Equal(t, ir.Dislike, f.backend.Vote(target, guest.ID))
}

func TestScenarioD_OverlappingToggles(t *testing.T) {
	ctx := context.Background()
	target := ir.Event(1)

	setup := func(t *testing.T) (*fixture, ir.Dispatch, ir.Dispatch) {
		f := newFixture(t)
		f.given(target, ir.Counts{}, ir.None)
		f.backend.FailTotals(true)

		d1, err := f.ctl.Toggle(ctx, target, ir.Like)
		require.NoError(t, err)
		d2, err := f.ctl.Toggle(ctx, target, ir.Dislike)
		require.NoError(t, err)

		assert.Equal(t, ir.Dispatch{Seq: 1, Target: target, Prev: ir.None, Next: ir.Like}, d1)
		assert.Equal(t, ir.Dispatch{Seq: 2, Target: target, Prev: ir.Like, Next: ir.Dislike}, d2)
		view := f.ctl.View(ctx, target)
		assert.Equal(t, ir.Dislike, view.Mine, "ledger reflects the second toggle")
		assert.Equal(t, ir.Counts{Dislikes: 1}, view.Counts)
		return f, d1, d2
	}

	t.Run("both succeed", func(t *testing.T) {
		f, d1, d2 := setup(t)
		require.NoError(t, f.ctl.Reconcile(ctx, d1).Err)
		out := f.ctl.Reconcile(ctx, d2)
		require.NoError(t, out.Err)
		assert.Equal(t, ir.Dislike, out.Value)
		assert.Equal(t, ir.Counts{Dislikes: 1}, out.Counts)
		assert.Equal(t, ir.Dislike, f.backend.Vote(target, guest.ID))
	})

	t.Run("second fails", func(t *testing.T) {
		f, d1, d2 := setup(t)
		require.NoError(t, f.ctl.Reconcile(ctx, d1).Err)
		f.backend.FailMutations(1)
		out := f.ctl.Reconcile(ctx, d2)
		require.Error(t, out.Err)
		assert.Equal(t, ir.Like, out.Value)
		assert.Equal(t, ir.Counts{Likes: 1}, out.Counts)
		assert.Equal(t, ir.Like, f.backend.Vote(target, guest.ID), "local state matches the server")
	})

	t.Run("first fails", func(t *testing.T) {
		f, d1, d2 := setup(t)
		f.backend.FailMutations(1)
		out1 := f.ctl.Reconcile(ctx, d1)
		require.Error(t, out1.Err)
		// Inverse of None->Like only removes the like; the dislike from d2 stays.
		assert.Equal(t, ir.Counts{Dislikes: 1}, out1.Counts)
		assert.Equal(t, ir.None, out1.Value)

		require.NoError(t, f.ctl.Reconcile(ctx, d2).Err)
		require.Len(t, f.ctl.Notices(), 1)
		assert.Equal(t, int64(1), f.ctl.Notices()[0].Seq)
	})

	t.Run("both fail in reverse order", func(t *testing.T) {
		f, d1, d2 := setup(t)
		f.backend.FailMutations(-1)
		f.ctl.Reconcile(ctx, d2)
		out := f.ctl.Reconcile(ctx, d1)
		assert.Equal(t, ir.None, out.Value)
		assert.Equal(t, ir.Counts{}, out.Counts)

		notices := f.ctl.Notices()
		require.Len(t, notices, 2)
		assert.Equal(t, int64(2), notices[0].Seq)
		assert.Equal(t, int64(1), notices[1].Seq)
	})
}

func TestToggle_InvalidDirection(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()
	f := newFixture(t, WithClock(clock))
	f.ctl.Seed(ir.Event(1), ir.Counts{Likes: 1})

	for _, dir := range []ir.Value{ir.None, ir.Value(3)} {
		_, err := f.ctl.Toggle(ctx, ir.Event(1), dir)
		assert.ErrorIs(t, err, ErrInvalidDirection)
	}
	_, _, err := f.ctl.ReactAsync(ctx, ir.Event(1), ir.None)
	assert.ErrorIs(t, err, ErrInvalidDirection)

	assert.Equal(t, View{Target: ir.Event(1), Counts: ir.Counts{Likes: 1}, Mine: ir.None}, f.ctl.View(ctx, ir.Event(1)))
	assert.Equal(t, int64(0), clock.Current())
}

func TestToggle_DoubleToggleRestoresState(t *testing.T) {
	ctx := context.Background()

	for _, start := range []ir.Value{ir.None, ir.Like, ir.Dislike} {
		for _, dir := range []ir.Value{ir.Like, ir.Dislike} {
			t.Run(start.String()+"/"+dir.String(), func(t *testing.T) {
				f := newFixture(t)
				target := ir.Event(1)
				f.ledger.Set(ctx, target, start)
				f.ctl.Seed(target, ir.Counts{Likes: 3, Dislikes: 3})
				before := f.ctl.View(ctx, target)

				_, err := f.ctl.Toggle(ctx, target, dir)
				require.NoError(t, err)
				second := dir
				if start != ir.None && start != dir {
					// The first click switched sides; clicking the original
					// side switches back.
					second = start
				}
				_, err = f.ctl.Toggle(ctx, target, second)
				require.NoError(t, err)

				assert.Equal(t, before, f.ctl.View(ctx, target))
				assert.Empty(t, f.backend.Requests(), "toggle never touches the network")
			})
		}
	}
}

func TestToggle_CountsNeverNegative(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	dirs := []ir.Value{ir.Like, ir.Dislike}

	for run := 0; run < 50; run++ {
		f := newFixture(t)
		target := ir.Event(1)
		// Seeded counts may disagree with the ledger, as stale payloads do.
		f.ctl.Seed(target, ir.Counts{Likes: int64(rng.IntN(2)), Dislikes: int64(rng.IntN(2))})
		f.ledger.Set(ctx, target, []ir.Value{ir.None, ir.Like, ir.Dislike}[rng.IntN(3)])

		var pending []ir.Dispatch
		for step := 0; step < 20; step++ {
			if len(pending) > 0 && rng.IntN(3) == 0 {
				i := rng.IntN(len(pending))
				if rng.IntN(2) == 0 {
					f.backend.FailMutations(1)
				}
				f.backend.FailTotals(true)
				f.ctl.Reconcile(ctx, pending[i])
				pending = append(pending[:i], pending[i+1:]...)
			} else {
				d, err := f.ctl.Toggle(ctx, target, dirs[rng.IntN(2)])
				require.NoError(t, err)
				pending = append(pending, d)
			}

			c := f.ctl.View(ctx, target).Counts
			require.GreaterOrEqual(t, c.Likes, int64(0), "run %d step %d", run, step)
			require.GreaterOrEqual(t, c.Dislikes, int64(0), "run %d step %d", run, step)
		}
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ir.Event(1)

	_, ok := f.ctl.Clear(ctx, target)
	assert.False(t, ok, "nothing to clear")

	f.given(target, ir.Counts{Likes: 2}, ir.Dislike)
	d, ok := f.ctl.Clear(ctx, target)
	require.True(t, ok)
	assert.Equal(t, ir.Dislike, d.Prev)
	assert.Equal(t, ir.None, d.Next)

	out := f.ctl.Reconcile(ctx, d)
	require.NoError(t, out.Err)
	assert.Equal(t, ir.Counts{Likes: 2}, out.Counts)

	reqs := f.backend.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, testutil.OpClear, reqs[0].Op)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ir.Event(1)
	f.ctl.Seed(target, ir.Counts{Likes: 1})
	f.backend.SetOthers(target, ir.Counts{Likes: 7, Dislikes: 1})

	got, err := f.ctl.Refresh(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, ir.Counts{Likes: 7, Dislikes: 1}, got)

	f.backend.FailTotals(true)
	f.backend.SetOthers(target, ir.Counts{})
	_, err = f.ctl.Refresh(ctx, target)
	assert.ErrorIs(t, err, testutil.ErrBackendDown)
	assert.Equal(t, ir.Counts{Likes: 7, Dislikes: 1}, f.ctl.View(ctx, target).Counts, "failed fetch leaves counts")
}

func TestSeedAndForget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ir.Comment(2, 9)

	f.ctl.Seed(target, ir.Counts{Likes: -3, Dislikes: 4})
	assert.Equal(t, ir.Counts{Dislikes: 4}, f.ctl.View(ctx, ir.Comment(0, 9)).Counts)

	f.ctl.Forget(target)
	assert.Equal(t, ir.Counts{}, f.ctl.View(ctx, target).Counts)
}

func TestLedgerFailureDegradesToNone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ir.Event(1)
	f.given(target, ir.Counts{Likes: 1}, ir.Like)

	f.kv.SetFailing(true)
	d, err := f.ctl.Toggle(ctx, target, ir.Like)
	require.NoError(t, err)
	assert.Equal(t, ir.None, d.Prev, "unreadable ledger reads as no reaction")
	assert.Equal(t, ir.Like, d.Next)
}

func TestNotices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.FailMutations(-1)

	out, err := f.ctl.React(ctx, ir.Event(1), ir.Like)
	require.NoError(t, err)
	require.Error(t, out.Err)

	select {
	case <-f.ctl.WaitNotice():
	case <-time.After(time.Second):
		t.Fatal("no notice signal")
	}

	notices := f.ctl.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, out.Dispatch, notices[0].Dispatch)
	assert.Contains(t, notices[0].Message, "backend unavailable")

	assert.True(t, f.ctl.Dismiss(notices[0].Seq))
	assert.False(t, f.ctl.Dismiss(notices[0].Seq))
	assert.Empty(t, f.ctl.Notices())
}

func TestClose_WakesNoticeWaiters(t *testing.T) {
	f := newFixture(t)
	f.ctl.Close()

	_, open := <-f.ctl.WaitNotice()
	assert.False(t, open)
}

func TestObserver_EventOrder(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		types []EventType
	)
	f := newFixture(t, WithObserver(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	}))

	_, err := f.ctl.React(ctx, ir.Event(1), ir.Like)
	require.NoError(t, err)
	f.backend.FailMutations(1)
	f.backend.FailTotals(true)
	_, err = f.ctl.React(ctx, ir.Event(1), ir.Dislike)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventToggle, EventRequest, EventConfirmed, EventRefresh,
		EventToggle, EventRequest, EventRollback, EventRefreshFailed,
	}, types)
}

func TestReactAsync_TogglesBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := ir.Event(1), ir.Comment(1, 2)
	f.backend.Block()

	_, chA, err := f.ctl.ReactAsync(ctx, a, ir.Like)
	require.NoError(t, err)
	_, chB, err := f.ctl.ReactAsync(ctx, b, ir.Dislike)
	require.NoError(t, err)

	require.True(t, f.backend.WaitInFlight(2, time.Second))
	assert.Equal(t, ir.Counts{Likes: 1}, f.ctl.View(ctx, a).Counts)
	assert.Equal(t, ir.Counts{Dislikes: 1}, f.ctl.View(ctx, b).Counts)

	// Toggles keep applying while requests are held.
	_, err = f.ctl.Toggle(ctx, a, ir.Dislike)
	require.NoError(t, err)
	assert.Equal(t, ir.Dislike, f.ctl.View(ctx, a).Mine)

	f.backend.Unblock()
	outA := <-chA
	outB := <-chB
	require.NoError(t, outA.Err)
	require.NoError(t, outB.Err)
	f.ctl.Wait()

	_, open := <-chA
	assert.False(t, open, "channel closed after the outcome")
}

func TestReactAsync_ContextCanceledRollsBack(t *testing.T) {
	f := newFixture(t)
	f.backend.Block()
	defer f.backend.Unblock()

	ctx, cancel := context.WithCancel(context.Background())
	_, ch, err := f.ctl.ReactAsync(ctx, ir.Event(1), ir.Like)
	require.NoError(t, err)
	require.True(t, f.backend.WaitInFlight(1, time.Second))
	cancel()

	out := <-ch
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, context.Canceled))
	assert.Equal(t, ir.None, out.Value)
	assert.Equal(t, ir.Counts{}, out.Counts)
}

func TestClock(t *testing.T) {
	c := NewClockAt(5)
	assert.Equal(t, int64(6), c.Next())
	assert.Equal(t, int64(6), c.Current())
	assert.Equal(t, int64(1), NewClock().Next())
}
