package userservice

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	Client
	gets atomic.Int32
}

func (c *countingClient) GetUser(_ context.Context, id string) (*User, error) {
	c.gets.Add(1)
	return &User{ID: id, Username: "user-" + id}, nil
}

func (c *countingClient) UpdateUserByID(_ context.Context, id string, _ UserModify, _ string) (*UserMessageResponse, error) {
	return &UserMessageResponse{Message: "updated", User: &User{ID: id}}, nil
}

func (c *countingClient) DeleteUser(_ context.Context, _ string) (*UserMessageResponse, error) {
	return &UserMessageResponse{Message: "deleted", User: &User{ID: "u1"}}, nil
}

func TestCachingClient_GetUserIsCached(t *testing.T) {
	next := &countingClient{}
	client, err := NewCachingClient(context.Background(), next, time.Minute, nil)
	require.NoError(t, err)
	defer client.(*CachingClient).Close()

	for i := 0; i < 3; i++ {
		user, err := client.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "user-u1", user.Username)
	}

	assert.Equal(t, int32(1), next.gets.Load())
	assert.Equal(t, int64(2), client.(*CachingClient).Stats().Hits)
}

func TestCachingClient_InvalidatesOnWrite(t *testing.T) {
	next := &countingClient{}
	client, err := NewCachingClient(context.Background(), next, time.Minute, nil)
	require.NoError(t, err)
	defer client.(*CachingClient).Close()
	ctx := context.Background()

	_, _ = client.GetUser(ctx, "u1")
	_, err = client.DeleteUser(ctx, "tok")
	require.NoError(t, err)
	_, _ = client.GetUser(ctx, "u1")
	assert.Equal(t, int32(2), next.gets.Load())

	_, _ = client.GetUser(ctx, "u2")
	_, err = client.UpdateUserByID(ctx, "u2", UserModify{}, "admin")
	require.NoError(t, err)
	_, _ = client.GetUser(ctx, "u2")
	assert.Equal(t, int32(4), next.gets.Load())
}

func TestCachingClient_ForgetWithoutUserInResponse(t *testing.T) {
	next := &countingClient{}
	client, err := NewCachingClient(context.Background(), next, time.Minute, nil)
	require.NoError(t, err)
	caching := client.(*CachingClient)
	defer caching.Close()
	ctx := context.Background()

	_, _ = client.GetUser(ctx, "u3")
	caching.Forget("u3")
	caching.Forget("")
	_, _ = client.GetUser(ctx, "u3")
	assert.Equal(t, int32(2), next.gets.Load())
}

func TestCachingClient_DisabledReturnsNext(t *testing.T) {
	next := &countingClient{}
	client, err := NewCachingClient(context.Background(), next, 0, nil)
	require.NoError(t, err)
	assert.Same(t, next, client)
}
