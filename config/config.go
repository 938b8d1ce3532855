// Package config assembles the gateway configuration from defaults, an
// optional JSON or YAML file, and environment variables.
//
// Each section is the Config type of the package it configures, so a section
// is validated and defaulted by its owner. Config.Validate runs them all.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/events"
	"github.com/c360/postgraph/gateway/graphql"
	"github.com/c360/postgraph/pkg/ratelimit"
	"github.com/c360/postgraph/storage/mongostore"
	"github.com/c360/postgraph/userservice"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// MemoryStoreURL selects the in-process post store instead of MongoDB
const MemoryStoreURL = "memory://"

// Config is the complete gateway configuration
type Config struct {
	Environment string             `json:"environment" yaml:"environment"`
	Server      graphql.Config     `json:"server" yaml:"server"`
	Auth        AuthConfig         `json:"auth" yaml:"auth"`
	UserService userservice.Config `json:"user_service" yaml:"user_service"`
	Mongo       mongostore.Config  `json:"mongo" yaml:"mongo"`
	RateLimit   ratelimit.Config   `json:"rate_limit" yaml:"rate_limit"`
	AuthorCache AuthorCacheConfig  `json:"author_cache" yaml:"author_cache"`
	NATS        NATSConfig         `json:"nats" yaml:"nats"`
	Health      HealthConfig       `json:"health" yaml:"health"`
	Log         LogConfig          `json:"log" yaml:"log"`
}

// AuthConfig holds the token verification secret shared with the identity
// service
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

// AuthorCacheConfig controls caching of Post.author lookups
type AuthorCacheConfig struct {
	// TTLStr is how long a fetched user is reused; "0" disables (default: "30s")
	TTLStr string `json:"ttl" yaml:"ttl"`
}

// TTL returns the parsed cache lifetime
func (c AuthorCacheConfig) TTL() time.Duration {
	d, _ := time.ParseDuration(c.TTLStr)
	return d
}

// NATSConfig enables domain event publishing. An empty URL disables it.
type NATSConfig struct {
	URL    string        `json:"url,omitempty" yaml:"url,omitempty"`
	Name   string        `json:"name,omitempty" yaml:"name,omitempty"`
	Token  string        `json:"token,omitempty" yaml:"token,omitempty"`
	Events events.Config `json:"events" yaml:"events"`
}

// Enabled reports whether a NATS URL is configured
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// HealthConfig controls dependency checks
type HealthConfig struct {
	// IntervalStr is the time between check rounds (default: "15s")
	IntervalStr string `json:"interval" yaml:"interval"`
}

// Interval returns the parsed check interval
func (c HealthConfig) Interval() time.Duration {
	d, _ := time.ParseDuration(c.IntervalStr)
	return d
}

// LogConfig selects log level and output format
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the development defaults
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server:      graphql.DefaultConfig(),
		UserService: userservice.Config{TimeoutStr: "10s"},
		Mongo: mongostore.Config{
			Database:          "postgraph",
			Collection:        "posts",
			ConnectTimeoutStr: "10s",
		},
		RateLimit:   ratelimit.DefaultConfig(),
		AuthorCache: AuthorCacheConfig{TTLStr: "30s"},
		NATS: NATSConfig{
			Name: "postgraph",
			Events: events.Config{
				Stream:        events.DefaultStream,
				SubjectPrefix: events.DefaultSubjectPrefix,
				MaxAgeStr:     "168h",
			},
		},
		Health: HealthConfig{IntervalStr: "15s"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks every section and fills remaining defaults
func (c *Config) Validate() error {
	switch c.Environment {
	case "":
		c.Environment = EnvDevelopment
	case EnvDevelopment, EnvProduction:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown environment: %s", c.Environment))
	}
	if c.Environment == EnvProduction {
		c.Server.Production = true
	}

	if c.Auth.JWTSecret == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "auth.jwt_secret is required")
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"server", c.Server.Validate},
		{"user_service", c.UserService.Validate},
		{"mongo", c.Mongo.Validate},
		{"rate_limit", c.RateLimit.Validate},
	}
	if c.NATS.Enabled() {
		sections = append(sections, struct {
			name     string
			validate func() error
		}{"nats.events", c.NATS.Events.Validate})
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", s.name)
		}
	}

	if c.AuthorCache.TTLStr == "" {
		c.AuthorCache.TTLStr = "0"
	}
	if d, err := time.ParseDuration(c.AuthorCache.TTLStr); err != nil || d < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid author_cache.ttl: %s", c.AuthorCache.TTLStr))
	}

	if c.Health.IntervalStr == "" {
		c.Health.IntervalStr = "15s"
	}
	if d, err := time.ParseDuration(c.Health.IntervalStr); err != nil || d <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid health.interval: %s", c.Health.IntervalStr))
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown log format: %s", c.Log.Format))
	}
	return nil
}

// UsesMemoryStore reports whether posts are kept in process
func (c *Config) UsesMemoryStore() bool {
	return c.Mongo.URL == MemoryStoreURL
}

// String returns the configuration as JSON with secrets redacted
func (c *Config) String() string {
	redacted := *c
	if redacted.Auth.JWTSecret != "" {
		redacted.Auth.JWTSecret = "[REDACTED]"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "[REDACTED]"
	}
	redacted.Mongo.URL = redactURL(redacted.Mongo.URL)
	redacted.RateLimit.RedisURL = redactURL(redacted.RateLimit.RedisURL)

	data, err := json.MarshalIndent(&redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
