package userservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/pkg/tlsutil"
)

// Recorder observes identity service requests
type Recorder interface {
	RecordUpstream(method, route, status string, duration time.Duration)
}

// Config configures the HTTP client
type Config struct {
	// URL is the identity service base URL, e.g. "http://auth:3001/api/v1"
	URL string `json:"url" yaml:"url"`

	// TimeoutStr bounds each request (default: "10s")
	TimeoutStr string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// TLS adjusts verification of an https URL
	TLS tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`

	timeout time.Duration
}

// Validate fills defaults and requires an absolute base URL
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"identity service url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("identity service url must be absolute: %s", c.URL))
	}

	if c.TimeoutStr == "" {
		c.TimeoutStr = "10s"
	}
	timeout, err := time.ParseDuration(c.TimeoutStr)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("invalid timeout: %s", c.TimeoutStr))
	}
	if timeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeout must be positive")
	}
	c.timeout = timeout

	if err := c.TLS.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "tls")
	}
	return nil
}

// Timeout returns the parsed request timeout
func (c *Config) Timeout() time.Duration {
	if c.timeout == 0 {
		return 10 * time.Second
	}
	return c.timeout
}

// HTTPClient talks to the identity service over HTTP/JSON
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	recorder Recorder
	logger   *slog.Logger
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithRecorder observes request latency
func WithRecorder(r Recorder) Option {
	return func(h *HTTPClient) { h.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient creates a client for the service at cfg.URL. cfg must be
// validated. It fails only when cfg.TLS names unreadable files.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout()}
	if cfg.TLS.Enabled() {
		tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
		if err != nil {
			return nil, errors.WrapFatal(err, "HTTPClient", "New", "load tls config")
		}
		httpClient.Transport = tlsutil.Transport(tlsConfig)
	}

	h := &HTTPClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    httpClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "userservice")
	return h, nil
}

// ListUsers implements Client
func (h *HTTPClient) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := h.do(ctx, http.MethodGet, "/users", "/users", nil, "", &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// GetUser implements Client
func (h *HTTPClient) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	path := "/users/" + url.PathEscape(id)
	if err := h.do(ctx, http.MethodGet, path, "/users/{id}", nil, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser implements Client
func (h *HTTPClient) CreateUser(ctx context.Context, input UserInput) (*UserMessageResponse, error) {
	var resp UserMessageResponse
	if err := h.do(ctx, http.MethodPost, "/users", "/users", input, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login implements Client
func (h *HTTPClient) Login(ctx context.Context, creds Credentials) (*LoginMessageResponse, error) {
	var resp LoginMessageResponse
	if err := h.do(ctx, http.MethodPost, "/auth/login", "/auth/login", creds, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateUser implements Client
func (h *HTTPClient) UpdateUser(ctx context.Context, input UserModify, token string) (*UserMessageResponse, error) {
	var resp UserMessageResponse
	if err := h.do(ctx, http.MethodPut, "/users", "/users", input, token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteUser implements Client
func (h *HTTPClient) DeleteUser(ctx context.Context, token string) (*UserMessageResponse, error) {
	var resp UserMessageResponse
	if err := h.do(ctx, http.MethodDelete, "/users", "/users", nil, token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateUserByID implements Client
func (h *HTTPClient) UpdateUserByID(
	ctx context.Context, id string, input UserModify, token string,
) (*UserMessageResponse, error) {
	var resp UserMessageResponse
	path := "/users/" + url.PathEscape(id)
	if err := h.do(ctx, http.MethodPut, path, "/users/{id}", input, token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteUserByID implements Client
func (h *HTTPClient) DeleteUserByID(ctx context.Context, id, token string) (*UserMessageResponse, error) {
	var resp UserMessageResponse
	path := "/users/" + url.PathEscape(id)
	if err := h.do(ctx, http.MethodDelete, path, "/users/{id}", nil, token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one request. route is the templated path used as a metric label.
func (h *HTTPClient) do(ctx context.Context, method, path, route string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.WrapInvalid(err, "HTTPClient", method, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return errors.WrapInvalid(err, "HTTPClient", method, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		h.observe(method, route, "error", start)
		return errors.WrapTransient(err, "HTTPClient", method, fmt.Sprintf("request %s", route))
	}
	defer resp.Body.Close()
	h.observe(method, route, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		h.logger.Debug("Identity service rejected request",
			"method", method, "route", route, "status", resp.StatusCode)
		return &UpstreamError{StatusCode: resp.StatusCode, Status: reasonPhrase(resp)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return errors.WrapInvalid(err, "HTTPClient", method, fmt.Sprintf("decode %s response", route))
	}
	return nil
}

func (h *HTTPClient) observe(method, route, status string, start time.Time) {
	if h.recorder != nil {
		h.recorder.RecordUpstream(method, route, status, time.Since(start))
	}
}

// reasonPhrase returns the text after the status code in resp.Status
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}
