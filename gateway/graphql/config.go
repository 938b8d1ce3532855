package graphql

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/pkg/tlsutil"
)

// Config is the gateway's HTTP surface: where it listens, what it serves
// and how long a request may take.
type Config struct {
	BindAddress      string `json:"bind_address" yaml:"bind_address"` // default ":3000"
	Path             string `json:"path" yaml:"path"`                 // default "/graphql"
	EnablePlayground bool   `json:"enable_playground" yaml:"enable_playground"`

	EnableCORS  bool     `json:"enable_cors" yaml:"enable_cors"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"` // default ["*"] with CORS on

	// TimeoutStr bounds reads and writes, 100ms to 5m (default "30s")
	TimeoutStr    string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxQueryDepth int    `json:"max_query_depth,omitempty" yaml:"max_query_depth,omitempty"` // 1 to 50, default 10

	// Production hides error details on the catch-all handler
	Production bool `json:"production" yaml:"production"`

	TLS tlsutil.ServerConfig `json:"tls,omitempty" yaml:"tls,omitempty"`

	// TrustedProxies are the peers, as addresses or CIDR prefixes, whose
	// X-Forwarded-For header names the client. Empty means use the peer.
	TrustedProxies []string `json:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`

	timeout time.Duration
}

// Validate fills defaults and checks bounds
func (c *Config) Validate() error {
	invalid := func(err error, action string) error {
		return errors.WrapInvalid(err, "Config", "Validate", action)
	}

	c.BindAddress = cmp.Or(c.BindAddress, ":3000")
	c.Path = cmp.Or(c.Path, "/graphql")
	if !strings.HasPrefix(c.Path, "/") {
		return invalid(errors.ErrInvalidConfig, "path "+c.Path+" must start with /")
	}

	timeout, err := time.ParseDuration(cmp.Or(c.TimeoutStr, "30s"))
	if err != nil {
		return invalid(err, "parse timeout")
	}
	if timeout < minTimeout || timeout > maxTimeout {
		return invalid(errors.ErrInvalidConfig, fmt.Sprintf("timeout %v outside [%v, %v]", timeout, minTimeout, maxTimeout))
	}
	c.timeout = timeout

	c.MaxQueryDepth = cmp.Or(c.MaxQueryDepth, 10)
	if c.MaxQueryDepth < 1 || c.MaxQueryDepth > 50 {
		return invalid(errors.ErrInvalidConfig, "max_query_depth must be within [1, 50]")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if err := c.TLS.Validate(); err != nil {
		return invalid(err, "tls")
	}
	if _, err := identity.ParsePrefixes(c.TrustedProxies); err != nil {
		return invalid(err, "trusted_proxies")
	}
	return nil
}

const (
	minTimeout = 100 * time.Millisecond
	maxTimeout = 5 * time.Minute
)

// Timeout returns the parsed timeout duration
func (c *Config) Timeout() time.Duration {
	if c.timeout == 0 {
		return 30 * time.Second
	}
	return c.timeout
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		BindAddress:      ":3000",
		Path:             "/graphql",
		EnablePlayground: true,
		EnableCORS:       true,
		CORSOrigins:      []string{"*"},
		TimeoutStr:       "30s",
		MaxQueryDepth:    10,
		timeout:          30 * time.Second,
	}
}
