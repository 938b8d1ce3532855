package userservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/postgraph/pkg/cache"
)

// Invalidator drops cached user records. Callers that change a user through
// a token-scoped call use it with the id they already know, since the
// upstream response is not guaranteed to carry one.
type Invalidator interface {
	Forget(id string)
}

var _ Invalidator = (*CachingClient)(nil)

// CachingClient caches GetUser results for author resolution. Updates and
// deletes through the client drop the affected entry.
type CachingClient struct {
	Client
	users  *cache.TTL[User]
	logger *slog.Logger
}

// NewCachingClient wraps next with a ttl-bounded user cache. A non-positive
// ttl returns next unchanged.
func NewCachingClient(ctx context.Context, next Client, ttl time.Duration, logger *slog.Logger) (Client, error) {
	if ttl <= 0 {
		return next, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	users, err := cache.NewTTL[User](ctx, ttl, ttl)
	if err != nil {
		return nil, err
	}

	return &CachingClient{
		Client: next,
		users:  users,
		logger: logger.With("component", "userservice-cache"),
	}, nil
}

// GetUser implements Client
func (c *CachingClient) GetUser(ctx context.Context, id string) (*User, error) {
	if user, ok := c.users.Get(id); ok {
		return &user, nil
	}

	user, err := c.Client.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.users.Set(id, *user); err != nil {
		c.logger.Debug("User not cached", "id", id, "error", err)
	}
	return user, nil
}

// UpdateUser implements Client
func (c *CachingClient) UpdateUser(ctx context.Context, input UserModify, token string) (*UserMessageResponse, error) {
	resp, err := c.Client.UpdateUser(ctx, input, token)
	c.forget(resp)
	return resp, err
}

// DeleteUser implements Client
func (c *CachingClient) DeleteUser(ctx context.Context, token string) (*UserMessageResponse, error) {
	resp, err := c.Client.DeleteUser(ctx, token)
	c.forget(resp)
	return resp, err
}

// UpdateUserByID implements Client
func (c *CachingClient) UpdateUserByID(
	ctx context.Context, id string, input UserModify, token string,
) (*UserMessageResponse, error) {
	c.users.Delete(id)
	resp, err := c.Client.UpdateUserByID(ctx, id, input, token)
	c.users.Delete(id)
	return resp, err
}

// DeleteUserByID implements Client
func (c *CachingClient) DeleteUserByID(ctx context.Context, id, token string) (*UserMessageResponse, error) {
	resp, err := c.Client.DeleteUserByID(ctx, id, token)
	c.users.Delete(id)
	return resp, err
}

// Stats returns the cache counters
func (c *CachingClient) Stats() cache.Stats {
	return c.users.Stats()
}

// Close stops the cache sweep
func (c *CachingClient) Close() error {
	return c.users.Close()
}

// Forget drops the cached record of user id
func (c *CachingClient) Forget(id string) {
	if id != "" {
		c.users.Delete(id)
	}
}

func (c *CachingClient) forget(resp *UserMessageResponse) {
	if resp != nil && resp.User != nil && resp.User.ID != "" {
		c.users.Delete(resp.User.ID)
	}
}
