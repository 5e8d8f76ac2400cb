package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcut/playback/internal/queue"
)

func intLess(a, b int) bool { return a < b }

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool(Dependencies[int]{}, 1)
	assert.Error(t, err)

	p, err := NewPool(Dependencies[int]{
		Queue: queue.New[int](),
		Less:  intLess,
		Run:   func(context.Context, int) {},
	}, 0)
	require.NoError(t, err)
	assert.Greater(t, p.Size(), 0)
}

func TestPool_RunsAllJobs(t *testing.T) {
	q := queue.New[int]()
	var wg sync.WaitGroup
	var sum atomic.Int64

	p, err := NewPool(Dependencies[int]{
		Queue: q,
		Less:  intLess,
		Run: func(_ context.Context, v int) {
			sum.Add(int64(v))
			wg.Done()
		},
	}, 4)
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	wg.Add(100)
	for i := 1; i <= 100; i++ {
		q.Push(i)
	}
	wg.Wait()

	assert.Equal(t, int64(5050), sum.Load())
	assert.Eventually(t, func() bool { return p.Executed() == 100 }, time.Second, time.Millisecond)
}

func TestPool_PopsBestFirst(t *testing.T) {
	q := queue.New[int]()
	q.Push(9, 3, 7, 1, 5)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	p, err := NewPool(Dependencies[int]{
		Queue: q,
		Less:  intLess,
		Run: func(_ context.Context, v int) {
			mu.Lock()
			order = append(order, v)
			n := len(order)
			mu.Unlock()
			if n == 5 {
				close(done)
			}
		},
	}, 1)
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 3, 5, 7, 9}, order)
}

func TestPool_StopCancelsContext(t *testing.T) {
	q := queue.New[int]()
	started := make(chan struct{})
	var cancelled atomic.Bool

	p, err := NewPool(Dependencies[int]{
		Queue: q,
		Less:  intLess,
		Run: func(ctx context.Context, _ int) {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
		},
	}, 1)
	require.NoError(t, err)

	p.Start(context.Background())
	q.Push(1)
	<-started

	p.Stop()
	assert.True(t, cancelled.Load())
	assert.False(t, p.IsRunning())

	// Stop twice is safe.
	p.Stop()
}

func TestPool_RecoversFromPanic(t *testing.T) {
	q := queue.New[int]()
	var ran atomic.Int32

	p, err := NewPool(Dependencies[int]{
		Queue: q,
		Less:  intLess,
		Run: func(_ context.Context, v int) {
			ran.Add(1)
			if v == 0 {
				panic("boom")
			}
		},
	}, 1)
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	q.Push(0)
	q.Push(1)

	assert.Eventually(t, func() bool { return p.Executed() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, 0, p.Busy())
}
