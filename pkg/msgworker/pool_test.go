package msgworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, workers, queue int) *Pool {
	t.Helper()
	pool := NewPool(workers, queue)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})
	return pool
}

func TestPool_TryDispatchNonBlocking(t *testing.T) {
	pool := startPool(t, 2, 10)

	start := time.Now()
	err := pool.TryDispatch(Job{
		Tenant:         "t1",
		ConversationID: "c1",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestPool_SameConversationRunsInOrder(t *testing.T) {
	pool := startPool(t, 4, 100)

	var mu sync.Mutex
	var results []int
	for i := 1; i <= 5; i++ {
		val := i
		require.NoError(t, pool.TryDispatch(Job{
			Tenant:         "t1",
			ConversationID: "conv-1",
			Handler: func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 5
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, results)
}

func TestPool_SubmitReturnsHandlerError(t *testing.T) {
	pool := startPool(t, 2, 10)
	boom := errors.New("gateway down")

	err := pool.Submit(context.Background(), Job{
		Tenant:         "t1",
		ConversationID: "c1",
		Handler:        func(ctx context.Context) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), pool.GetStats().TotalErrors)

	err = pool.Submit(context.Background(), Job{
		Tenant:         "t1",
		ConversationID: "c1",
		Handler:        func(ctx context.Context) error { return nil },
	})
	assert.NoError(t, err)
}

func TestPool_SubmitRecoversPanic(t *testing.T) {
	pool := startPool(t, 1, 10)

	err := pool.Submit(context.Background(), Job{
		Tenant:         "t1",
		ConversationID: "c1",
		Handler:        func(ctx context.Context) error { panic("nil deref") },
	})
	require.Error(t, err)

	// the worker survives the panic
	assert.NoError(t, pool.Submit(context.Background(), Job{
		Tenant:         "t1",
		ConversationID: "c1",
		Handler:        func(ctx context.Context) error { return nil },
	}))
}

func TestPool_RespectsMaxWorkers(t *testing.T) {
	const maxWorkers = 3
	pool := startPool(t, maxWorkers, 100)

	var activeCount, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		conv := string(rune('A' + i))
		go func() {
			defer wg.Done()
			_ = pool.Submit(context.Background(), Job{
				Tenant:         "t1",
				ConversationID: conv,
				Handler: func(ctx context.Context) error {
					current := atomic.AddInt32(&activeCount, 1)
					for {
						seen := atomic.LoadInt32(&maxActive)
						if current <= seen || atomic.CompareAndSwapInt32(&maxActive, seen, current) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					atomic.AddInt32(&activeCount, -1)
					return nil
				},
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(maxWorkers))
	assert.Equal(t, int64(10), pool.GetStats().TotalProcessed)
}

func TestPool_StopCompletesInFlightJobs(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	var completed int32
	for i := 0; i < 2; i++ {
		require.NoError(t, pool.TryDispatch(Job{
			Tenant:         "t1",
			ConversationID: string(rune('A' + i)),
			Handler: func(ctx context.Context) error {
				time.Sleep(30 * time.Millisecond)
				atomic.AddInt32(&completed, 1)
				return nil
			},
		}))
	}
	time.Sleep(5 * time.Millisecond)

	cancel()
	pool.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&completed))
	assert.ErrorIs(t, pool.TryDispatch(Job{Tenant: "t1", ConversationID: "x", Handler: func(context.Context) error { return nil }}), ErrPoolStopped)
}

func TestPool_ShardIsStableAndSpread(t *testing.T) {
	pool := NewPool(4, 10)

	s1 := pool.shardFor("t1", "conv-123")
	assert.Equal(t, s1, pool.shardFor("t1", "conv-123"))
	assert.GreaterOrEqual(t, s1, 0)
	assert.Less(t, s1, 4)

	counts := map[int]int{}
	for i := 0; i < 400; i++ {
		counts[pool.shardFor("t1", string(rune(1000+i)))]++
	}
	for shard, n := range counts {
		assert.Greater(t, n, 50, "shard %d", shard)
		assert.Less(t, n, 150, "shard %d", shard)
	}
}
