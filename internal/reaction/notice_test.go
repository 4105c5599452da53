package reaction

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoticeQueue_FIFO(t *testing.T) {
	q := newNoticeQueue()
	for seq := int64(1); seq <= 3; seq++ {
		require.True(t, q.Push(Notice{Seq: seq}))
	}

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{pending[0].Seq, pending[1].Seq, pending[2].Seq})

	pending[0].Seq = 99
	assert.Equal(t, int64(1), q.Pending()[0].Seq, "Pending returns a copy")
}

func TestNoticeQueue_Dismiss(t *testing.T) {
	q := newNoticeQueue()
	q.Push(Notice{Seq: 1})
	q.Push(Notice{Seq: 2})

	assert.True(t, q.Dismiss(1))
	assert.False(t, q.Dismiss(1))
	assert.False(t, q.Dismiss(7))
	require.Equal(t, 1, q.Len())
	assert.Equal(t, int64(2), q.Pending()[0].Seq)
}

func TestNoticeQueue_SignalCoalesces(t *testing.T) {
	q := newNoticeQueue()
	q.Push(Notice{Seq: 1})
	q.Push(Notice{Seq: 2})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a signal after Push")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestNoticeQueue_Close(t *testing.T) {
	q := newNoticeQueue()
	q.Close()
	q.Close()

	_, ok := <-q.Wait()
	assert.False(t, ok, "Wait channel is closed")
	assert.False(t, q.Push(Notice{Seq: 1}))
	assert.Equal(t, 0, q.Len())
}

func TestNoticeQueue_ConcurrentPush(t *testing.T) {
	q := newNoticeQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			q.Push(Notice{Seq: seq})
		}(int64(i + 1))
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}
