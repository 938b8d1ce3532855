// Package natsclient holds the gateway's single NATS connection and the
// JetStream handle used to publish domain events.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/pkg/retry"
)

// State is the lifecycle state of a Client
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrNotConnected is returned by operations that need a live connection
var ErrNotConnected = errors.New("nats: not connected")

// Client owns one NATS connection. Connect once, Close once.
type Client struct {
	url    string
	opts   options
	logger *slog.Logger

	state atomic.Int32

	mu     sync.RWMutex
	conn   *nats.Conn
	js     jetstream.JetStream
	closed chan struct{}
}

// NewClient validates the options; no connection is made until Connect
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.New("empty url"), "Client", "NewClient", "validate url")
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		opts:   o,
		logger: logger.With("component", "natsclient"),
	}, nil
}

// URL returns the server URL the client dials
func (c *Client) URL() string { return c.url }

// Status returns the current connection state
func (c *Client) Status() State { return State(c.state.Load()) }

// Connect dials the server under the client's retry schedule and opens the
// JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StateClosed {
		return errors.WrapFatal(ErrNotConnected, "Client", "Connect", "client closed")
	}
	c.setState(StateConnecting)

	closed := make(chan struct{})
	var conn *nats.Conn
	err := retry.Do(ctx, c.opts.retry, func(context.Context) error {
		var err error
		conn, err = nats.Connect(c.url, c.natsOptions(closed)...)
		if err != nil {
			c.logger.Debug("dial failed", "url", c.url, "error", err)
		}
		return err
	})
	if err != nil {
		c.setState(StateIdle)
		return errors.WrapTransient(err, "Client", "Connect", "dial server")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.setState(StateIdle)
		return errors.WrapFatal(err, "Client", "Connect", "open JetStream")
	}

	c.mu.Lock()
	c.conn, c.js, c.closed = conn, js, closed
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("connected", "url", conn.ConnectedUrlRedacted())
	return nil
}

func (c *Client) natsOptions(closed chan struct{}) []nats.Option {
	o := []nats.Option{
		nats.Timeout(c.opts.dialTimeout),
		nats.MaxReconnects(c.opts.maxReconnects),
		nats.ReconnectWait(c.opts.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.Status() == StateClosed {
				return
			}
			c.setState(StateReconnecting)
			c.logger.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setState(StateConnected)
			c.logger.Info("reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			select {
			case <-closed:
			default:
				close(closed)
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			c.logger.Error("async error", "subject", subject, "error", err)
		}),
	}
	if c.opts.name != "" {
		o = append(o, nats.Name(c.opts.name))
	}
	switch {
	case c.opts.token != "":
		o = append(o, nats.Token(c.opts.token))
	case c.opts.username != "":
		o = append(o, nats.UserInfo(c.opts.username, c.opts.password))
	}
	return o
}

// Close drains the connection, bounded by ctx and the drain timeout.
// Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	prev := State(c.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}
	if prev == StateConnected && c.opts.onHealthChange != nil {
		c.opts.onHealthChange(false)
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.conn, c.js = nil, nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "Client", "Close", "drain connection")
	}

	timer := time.NewTimer(c.opts.drainTimeout)
	defer timer.Stop()
	select {
	case <-closed:
		return nil
	case <-timer.C:
		conn.Close()
		return errors.WrapTransient(errors.New("drain timed out"), "Client", "Close", "drain connection")
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "drain connection")
	}
}

// RTT measures a round trip to the server; used as the health probe
func (c *Client) RTT() (time.Duration, error) {
	conn, _ := c.current()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// JetStream returns the JetStream context of the live connection
func (c *Client) JetStream() (jetstream.JetStream, error) {
	_, js := c.current()
	if js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream")
	}
	return js, nil
}

// EnsureStream creates the stream or updates it to cfg. A stream that
// already exists under a conflicting config is returned unchanged.
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err == nil {
		return stream, nil
	}
	if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		if existing, lookupErr := js.Stream(ctx, cfg.Name); lookupErr == nil {
			c.logger.Warn("stream exists with different config", "stream", cfg.Name)
			return existing, nil
		}
	}
	return nil, errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+cfg.Name)
}

// PublishToStream publishes data and waits for the JetStream ack
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "PublishToStream", "publish "+subject)
	}
	return nil
}

func (c *Client) current() (*nats.Conn, jetstream.JetStream) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn, c.js
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s || c.opts.onHealthChange == nil {
		return
	}
	if s == StateConnected || prev == StateConnected {
		c.opts.onHealthChange(s == StateConnected)
	}
}
