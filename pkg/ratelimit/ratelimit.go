// Package ratelimit provides sliding-window call limiters keyed by caller.
//
// A limiter admits at most Max calls per key within any Window-long interval.
// Two backends are available: an in-process SlidingWindow for single-instance
// deployments and a RedisLimiter that shares counts between gateway replicas.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/postgraph/errors"
)

// Backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Limiter decides whether one more call for key is admitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// Config describes a {window, max} rule and where counts are kept
type Config struct {
	// WindowStr is the sliding window length (default: "1s")
	WindowStr string `json:"window" yaml:"window"`

	// Max is the number of calls admitted per key per window (default: 5)
	Max int `json:"max" yaml:"max"`

	// Backend is "memory" (default) or "redis"
	Backend string `json:"backend" yaml:"backend"`

	// RedisURL is required for the redis backend (redis://host:6379/0)
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`

	// KeyPrefix namespaces redis keys (default: "postgraph:ratelimit:")
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`

	window time.Duration
}

// DefaultConfig returns the login rule: five calls per second
func DefaultConfig() Config {
	return Config{
		WindowStr: "1s",
		Max:       5,
		Backend:   BackendMemory,
		KeyPrefix: "postgraph:ratelimit:",
		window:    time.Second,
	}
}

// Validate fills defaults and checks the rule
func (c *Config) Validate() error {
	if c.WindowStr == "" {
		c.WindowStr = "1s"
	}
	window, err := time.ParseDuration(c.WindowStr)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("invalid window: %s", c.WindowStr))
	}
	if window <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "window must be positive")
	}
	c.window = window

	if c.Max == 0 {
		c.Max = 5
	}
	if c.Max < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max must be positive")
	}

	if c.KeyPrefix == "" {
		c.KeyPrefix = "postgraph:ratelimit:"
	}

	switch c.Backend {
	case "", BackendMemory:
		c.Backend = BackendMemory
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"redis_url is required for the redis backend")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown backend: %s", c.Backend))
	}

	return nil
}

// Window returns the parsed window
func (c *Config) Window() time.Duration {
	if c.window == 0 {
		return time.Second
	}
	return c.window
}

// New builds the limiter selected by cfg.Backend. cfg must be validated.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Limiter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendRedis:
		limiter, err := NewRedisLimiterFromURL(ctx, cfg.RedisURL, cfg.KeyPrefix, cfg.Window(), cfg.Max)
		if err != nil {
			return nil, err
		}
		logger.Info("Rate limiter using redis backend", "window", cfg.Window(), "max", cfg.Max)
		return limiter, nil
	default:
		logger.Info("Rate limiter using in-memory backend", "window", cfg.Window(), "max", cfg.Max)
		return NewSlidingWindow(cfg.Window(), cfg.Max), nil
	}
}
