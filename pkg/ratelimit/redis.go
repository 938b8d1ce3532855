package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/pkg/retry"
)

// slidingWindowScript trims the key's sorted set to the window, then admits
// the call if room remains. Scores are microseconds so they stay exact in a
// Lua number.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
if redis.call('ZCARD', key) < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, math.ceil(window / 1000))
  return 1
end
return 0
`)

// RedisLimiter is a Limiter whose counts live in redis sorted sets, so every
// gateway replica enforces the same window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
	limit  int
	now    func() time.Time
}

// NewRedisLimiter wraps an existing client
func NewRedisLimiter(client *redis.Client, prefix string, window time.Duration, limit int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

// NewRedisLimiterFromURL parses url, connects and pings with the startup backoff
func NewRedisLimiterFromURL(ctx context.Context, url, prefix string, window time.Duration, limit int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.WrapInvalid(err, "RedisLimiter", "NewRedisLimiterFromURL", "parse redis url")
	}

	client := redis.NewClient(opts)
	err = retry.Do(ctx, retry.Startup(), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "RedisLimiter", "NewRedisLimiterFromURL", "ping redis")
	}

	return NewRedisLimiter(client, prefix, window, limit), nil
}

// Allow runs the sliding-window script for key
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	nowMicros := r.now().UnixMicro()
	member := fmt.Sprintf("%d-%s", nowMicros, uuid.NewString())

	admitted, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		nowMicros, r.window.Microseconds(), r.limit, member,
	).Int()
	if err != nil {
		return false, errors.WrapTransient(err, "RedisLimiter", "Allow", "run sliding window script")
	}

	return admitted == 1, nil
}

// Close closes the redis client
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
