package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*TTL[string], *time.Time) {
	t.Helper()
	c, err := NewTTL[string](context.Background(), ttl, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestTTL_GetSet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	_, ok := c.Get("u1")
	assert.False(t, ok)

	require.NoError(t, c.Set("u1", "alice"))
	v, ok := c.Get("u1")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 0.5, stats.HitRatio(), 0.0001)
}

func TestTTL_Expiry(t *testing.T) {
	c, now := newTestCache(t, time.Second)

	require.NoError(t, c.Set("u1", "alice"))
	*now = now.Add(2 * time.Second)

	_, ok := c.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTL_Sweep(t *testing.T) {
	c, now := newTestCache(t, time.Second)

	require.NoError(t, c.Set("a", "1"))
	require.NoError(t, c.Set("b", "2"))
	*now = now.Add(2 * time.Second)
	require.NoError(t, c.Set("c", "3"))

	c.sweep()
	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestTTL_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	require.NoError(t, c.Set("a", "1"))
	require.NoError(t, c.Set("b", "2"))

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestTTL_InvalidInput(t *testing.T) {
	_, err := NewTTL[int](context.Background(), 0, time.Second)
	assert.Error(t, err)

	c, _ := newTestCache(t, time.Minute)
	assert.Error(t, c.Set("", "x"))
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	c, err := NewTTL[int](context.Background(), time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%5))
			_ = c.Set(key, n)
			c.Get(key)
			c.Delete(key)
		}(i)
	}
	wg.Wait()
}

func TestTTL_CloseStopsSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewTTL[int](ctx, time.Minute, time.Millisecond)
	require.NoError(t, err)

	cancel()
	done := make(chan struct{})
	go func() {
		_ = c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
