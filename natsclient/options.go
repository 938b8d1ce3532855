package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/postgraph/pkg/retry"
)

type options struct {
	name           string
	token          string
	username       string
	password       string
	dialTimeout    time.Duration
	reconnectWait  time.Duration
	maxReconnects  int
	drainTimeout   time.Duration
	retry          retry.Config
	logger         *slog.Logger
	onHealthChange func(healthy bool)
}

func defaultOptions() options {
	return options{
		dialTimeout:   5 * time.Second,
		reconnectWait: 2 * time.Second,
		maxReconnects: -1,
		drainTimeout:  10 * time.Second,
		retry:         retry.Startup(),
	}
}

// ClientOption configures a Client
type ClientOption func(*options) error

// WithName sets the connection name shown in server monitoring
func WithName(name string) ClientOption {
	return func(o *options) error {
		o.name = name
		return nil
	}
}

// WithToken authenticates with a bearer token
func WithToken(token string) ClientOption {
	return func(o *options) error {
		o.token = token
		return nil
	}
}

// WithCredentials authenticates with user and password. A token wins if both
// are set.
func WithCredentials(username, password string) ClientOption {
	return func(o *options) error {
		if username == "" {
			return fmt.Errorf("username required")
		}
		o.username, o.password = username, password
		return nil
	}
}

// WithTimeout bounds each dial attempt
func WithTimeout(d time.Duration) ClientOption {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("dial timeout must be positive, got %v", d)
		}
		o.dialTimeout = d
		return nil
	}
}

// WithReconnect sets the automatic reconnect policy after a successful
// connect. max < 0 reconnects forever.
func WithReconnect(maxReconnects int, wait time.Duration) ClientOption {
	return func(o *options) error {
		if wait <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", wait)
		}
		o.maxReconnects, o.reconnectWait = maxReconnects, wait
		return nil
	}
}

// WithDrainTimeout bounds Close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("drain timeout must be positive, got %v", d)
		}
		o.drainTimeout = d
		return nil
	}
}

// WithRetry replaces the schedule used by Connect for the initial dial
func WithRetry(cfg retry.Config) ClientOption {
	return func(o *options) error {
		o.retry = cfg
		return nil
	}
}

// WithLogger sets the logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithHealthChangeCallback is called with true when the connection comes up
// and false when it drops or closes
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(o *options) error {
		o.onHealthChange = fn
		return nil
	}
}
