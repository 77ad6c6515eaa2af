package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/trackhub/internal/task"
)

func sleeper(id string, d time.Duration) *task.FuncTask {
	return task.Func(id, func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNextReturnsEachTaskOnce(t *testing.T) {
	ctx := testCtx(t)
	p := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Add(sleeper(fmt.Sprintf("t-%d", i), time.Duration(i)*5*time.Millisecond)))
	}
	require.NoError(t, p.Start(ctx))

	seen := map[string]int{}
	for i := 0; i < 5; i++ {
		tk, ok := p.Next(ctx)
		require.True(t, ok)
		assert.True(t, tk.IsDone())
		seen[tk.ID()]++
	}
	assert.Len(t, seen, 5)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}

	tk, ok := p.Next(ctx)
	assert.False(t, ok)
	assert.Nil(t, tk)
	assert.Equal(t, 0, p.Remaining())
	assert.NoError(t, p.Err())
}

func TestNextFollowsCompletionOrder(t *testing.T) {
	ctx := testCtx(t)
	p := New()
	require.NoError(t, p.Add(sleeper("slow", 300*time.Millisecond)))
	require.NoError(t, p.Add(sleeper("fast", 0)))
	require.NoError(t, p.Start(ctx))

	first, ok := p.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "fast", first.ID())
	second, ok := p.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "slow", second.ID())
}

func TestEmptyPoolIsExhausted(t *testing.T) {
	p := New()
	_, ok := p.Next(context.Background())
	assert.False(t, ok)
	assert.NoError(t, p.Err())
}

func TestNextBeforeStart(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(sleeper("a", 0)))

	_, ok := p.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, p.Err(), ErrPoolNotStarted)
	assert.ErrorIs(t, p.WaitAll(context.Background()), ErrPoolNotStarted)
}

func TestAddRules(t *testing.T) {
	p := New()
	a := sleeper("a", 0)
	require.NoError(t, p.Add(a))
	assert.ErrorIs(t, p.Add(a), ErrDuplicateTask)

	require.NoError(t, p.Start(testCtx(t)))
	assert.ErrorIs(t, p.Add(sleeper("b", 0)), ErrPoolStarted)
	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolStarted)
	assert.Equal(t, 1, p.Len())
}

func TestMaxParallel(t *testing.T) {
	ctx := testCtx(t)
	var running, peak int32
	p := New(WithMaxParallel(2))
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Add(task.Func(fmt.Sprintf("t-%d", i), func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})))
	}
	require.NoError(t, p.Start(ctx))

	count := 0
	for range p.Finished(ctx) {
		count++
	}
	assert.Equal(t, 6, count)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestCallbacks(t *testing.T) {
	ctx := testCtx(t)
	var mu sync.Mutex
	started, finished := []string{}, []string{}
	p := New(WithCallbacks(Callbacks{
		OnTaskStarted: func(tk task.Task) {
			mu.Lock()
			started = append(started, tk.ID())
			mu.Unlock()
		},
		OnTaskFinished: func(tk task.Task, _ time.Duration) {
			mu.Lock()
			finished = append(finished, tk.ID())
			mu.Unlock()
		},
	}), WithMaxParallel(1))
	require.NoError(t, p.Add(sleeper("a", 0)))
	require.NoError(t, p.Add(sleeper("b", 0)))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.WaitAll(ctx))

	for range p.Finished(ctx) {
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, started)
	assert.ElementsMatch(t, []string{"a", "b"}, finished)
}

func TestCancelledContextStillCompletesEveryTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(WithMaxParallel(1))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Add(sleeper(fmt.Sprintf("t-%d", i), 5*time.Second)))
	}
	require.NoError(t, p.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	cancel()

	drain := testCtx(t)
	n := 0
	for tk := range p.Finished(drain) {
		ok, err := tk.IsSuccess()
		require.NoError(t, err)
		assert.False(t, ok)
		n++
	}
	assert.Equal(t, 3, n)
}

func TestNextContextCancelled(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(sleeper("slow", 5*time.Second)))
	require.NoError(t, p.Start(testCtx(t)))
	defer p.CancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := p.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	assert.NoError(t, p.Err())
	assert.Equal(t, 1, p.Remaining())
}

func TestPanickingCallbackDoesNotStallPool(t *testing.T) {
	ctx := testCtx(t)
	p := New(WithCallbacks(Callbacks{
		OnTaskStarted:  func(task.Task) { panic("observer bug") },
		OnTaskFinished: func(task.Task, time.Duration) { panic("observer bug") },
	}))
	require.NoError(t, p.Add(sleeper("a", 0)))
	require.NoError(t, p.Add(sleeper("b", 0)))
	require.NoError(t, p.Start(ctx))

	n := 0
	for range p.Finished(ctx) {
		n++
	}
	assert.Equal(t, 2, n)
}
