//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/postgraph/testutil"
)

func TestIntegration_RedisLimiter(t *testing.T) {
	ctx := context.Background()
	url := testutil.StartRedis(t, ctx)

	limiter, err := NewRedisLimiterFromURL(ctx, url, "test:", time.Second, 5)
	require.NoError(t, err)
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "login:u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "login:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "login:u2")
	require.NoError(t, err)
	assert.True(t, ok, "other keys have their own window")

	time.Sleep(1100 * time.Millisecond)
	ok, err = limiter.Allow(ctx, "login:u1")
	require.NoError(t, err)
	assert.True(t, ok, "window must slide")
}

func TestIntegration_RedisLimiterSharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	url := testutil.StartRedis(t, ctx)

	a, err := NewRedisLimiterFromURL(ctx, url, "shared:", time.Minute, 2)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisLimiterFromURL(ctx, url, "shared:", time.Minute, 2)
	require.NoError(t, err)
	defer b.Close()

	ok, _ := a.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = b.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = a.Allow(ctx, "k")
	assert.False(t, ok)
}
