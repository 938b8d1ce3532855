package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRegistry struct {
	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

func (r *mapRegistry) Register(serviceName, metricName string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.collectors == nil {
		r.collectors = make(map[string]prometheus.Collector)
	}
	r.collectors[serviceName+"."+metricName] = c
	return nil
}

func TestPool_ProcessesAllWork(t *testing.T) {
	var sum atomic.Int64
	pool := NewPool(4, 100, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 1; i <= 50; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(1275), sum.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(50), stats.Submitted)
	assert.Equal(t, int64(50), stats.Processed)
	assert.Zero(t, stats.Failed)
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, string) error { return nil })

	assert.ErrorIs(t, pool.Submit("early"), ErrPoolNotStarted)
	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit("late"), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second), "second Stop")
}

func TestPool_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(context.Context, int) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(1))
	<-started // worker holds item 1, queue is empty
	require.NoError(t, pool.Submit(2))
	assert.ErrorIs(t, pool.Submit(3), ErrQueueFull)

	close(release)
	require.NoError(t, pool.Stop(5*time.Second))
	assert.Equal(t, int64(1), pool.Stats().Dropped)
	assert.Equal(t, int64(2), pool.Stats().Processed)
}

func TestPool_CountsFailuresAndMetrics(t *testing.T) {
	registry := &mapRegistry{}
	pool := NewPool(2, 10, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	}, WithMetrics[int](registry, "test_pool"))
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(3), pool.Stats().Failed)
	assert.Len(t, registry.collectors, 4)
	assert.Equal(t, 6.0, testutil.ToFloat64(registry.collectors["worker_pool.test_pool_submitted_total"]))
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	pool := NewPool(1, 1, func(context.Context, int) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(1))

	assert.ErrorIs(t, pool.Stop(50*time.Millisecond), ErrStopTimeout)
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[int](1, 1, nil)
	})
}
