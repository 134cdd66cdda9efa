package ratelimiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease_Basic(t *testing.T) {
	l := New(Config{MaxTokens: 2, RefillRate: 1, MaxConcurrent: 2})
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	snap := l.Snapshot()
	assert.Equal(t, 2, snap.ActiveRequests)
	assert.InDelta(t, 0, snap.CurrentTokens, 0.001)

	l.Release()
	l.Release()

	snap = l.Snapshot()
	assert.Equal(t, 0, snap.ActiveRequests)
}

func TestBounds_NeverNegativeNeverOverMax(t *testing.T) {
	l := New(Config{MaxTokens: 5, RefillRate: 100, MaxConcurrent: 3})
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.Acquire(ctx); err == nil {
				time.Sleep(5 * time.Millisecond)
				l.Release()
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.GreaterOrEqual(t, snap.CurrentTokens, 0.0)
	assert.LessOrEqual(t, snap.CurrentTokens, snap.MaxTokens)
	assert.LessOrEqual(t, snap.ActiveRequests, snap.MaxConcurrent)
}

func TestExecute_ReleasesOnError(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 1, MaxConcurrent: 1})
	defer l.Close()

	err := l.Execute(context.Background(), func() error {
		return assert.AnError
	})
	assert.Error(t, err)

	snap := l.Snapshot()
	assert.Equal(t, 0, snap.ActiveRequests)
}

func TestFIFOFairness(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 1, MaxConcurrent: 1})
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx)) // hold the only slot/token

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// stagger enqueue order deterministically
			time.Sleep(time.Duration(n) * 20 * time.Millisecond)
			if err := l.Acquire(context.Background()); err == nil {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				l.Release()
			}
		}(i)
	}

	time.Sleep(120 * time.Millisecond) // let all 5 enqueue
	l.Release()                        // release the held permit, start draining

	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestClearQueue_WakesWaitersWithoutPermit(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 0, MaxConcurrent: 1})
	defer l.Close()

	require.NoError(t, l.Acquire(context.Background()))

	var notAcquired int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Acquire(context.Background())
			if err == ErrNotAcquired {
				atomic.AddInt32(&notAcquired, 1)
			} else if err == nil {
				t.Error("unexpected permit granted after ClearQueue")
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	l.ClearQueue()
	wg.Wait()

	assert.Equal(t, int32(3), notAcquired)

	// the original holder must still be able to release cleanly
	l.Release()
	snap := l.Snapshot()
	assert.Equal(t, 0, snap.ActiveRequests)
}

func TestUpdateConfig_ClampsTokens(t *testing.T) {
	l := New(Config{MaxTokens: 10, RefillRate: 0, MaxConcurrent: 5})
	defer l.Close()

	l.UpdateConfig(Config{MaxTokens: 2, RefillRate: 0, MaxConcurrent: 5})
	snap := l.Snapshot()
	assert.LessOrEqual(t, snap.CurrentTokens, 2.0)
}

func TestContextCancellation_NotAcquired(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 0, MaxConcurrent: 1})
	defer l.Close()

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	l.Release()
}
