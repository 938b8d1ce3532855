package graphql

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	graphqlgo "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/c360/postgraph/errors"
	"github.com/c360/postgraph/gateway/policy"
	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/pkg/tlsutil"
)

// Server serves the GraphQL endpoint and the operational routes
type Server struct {
	config    Config
	schema    *graphqlgo.Schema
	extractor *identity.Extractor
	policy    *policy.Middleware
	health    http.Handler
	metrics   http.Handler
	logger    *slog.Logger

	httpServer *http.Server
	handler    http.Handler
	addr       net.Addr

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithPolicy runs GraphQL requests through the policy middleware
func WithPolicy(p *policy.Middleware) Option {
	return func(s *Server) { s.policy = p }
}

// WithHealth serves h on /health instead of the liveness default
func WithHealth(h http.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics serves h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server for schema. extractor builds the caller identity
// of every GraphQL request.
func NewServer(config Config, schema *graphqlgo.Schema, extractor *identity.Extractor, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if schema == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "require schema")
	}
	if extractor == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "require identity extractor")
	}

	s := &Server{
		config:    config,
		schema:    schema,
		extractor: extractor,
		logger:    slog.Default(),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "graphql-server")
	return s, nil
}

// Setup builds the handler chain and the http.Server. It must run before
// Start or Handler.
func (s *Server) Setup() error {
	tlsConfig, err := tlsutil.LoadServerConfig(s.config.TLS)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Setup", "load tls config")
	}

	// Outermost first: access log, security headers, CORS, routes.
	handler := s.routes()
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	handler = s.loggingMiddleware(securityHeaders(handler))

	timeout := s.config.Timeout()
	s.mu.Lock()
	s.handler = handler
	s.httpServer = &http.Server{
		Addr:              s.config.BindAddress,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       time.Minute,
	}
	s.mu.Unlock()

	s.logger.Info("server configured",
		"address", s.config.BindAddress,
		"path", s.config.Path,
		"playground", s.config.EnablePlayground,
		"tls", tlsConfig != nil)
	return nil
}

// routes mounts the GraphQL endpoint behind identity extraction and the
// request policy, plus the playground and operational routes.
func (s *Server) routes() http.Handler {
	var gql http.Handler = &relay.Handler{Schema: s.schema}
	if s.policy != nil {
		gql = s.policy.Handler(gql)
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+s.config.Path, s.extractor.Middleware(gql))
	if s.config.EnablePlayground {
		mux.Handle("GET /{$}", playground.Handler("postgraph", s.config.Path))
	}
	if s.health == nil {
		s.health = http.HandlerFunc(s.handleHealth)
	}
	mux.Handle("GET /health", s.health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("/", notFound)
	return mux
}

// Handler returns the handler chain built by Setup
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Start binds the listener, closes ready and serves until ctx is done, Stop
// is called or the server fails.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	ln, server, err := s.listen()
	if err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() {
		s.logger.Info("serving", "address", ln.Addr().String())
		served <- server.Serve(ln)
	}()
	if ready != nil {
		close(ready)
	}

	select {
	case <-ctx.Done():
		return s.Stop(30 * time.Second)
	case <-s.stopChan:
		return nil
	case err := <-served:
		s.setRunning(false)
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return errors.WrapFatal(err, "Server", "Start", "serve")
	}
}

func (s *Server) listen() (net.Listener, *http.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.running:
		return nil, nil, errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "start")
	case s.httpServer == nil:
		return nil, nil, errors.WrapFatal(errors.ErrNotStarted, "Server", "Start", "Setup before Start")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "Server", "Start", "listen on "+s.httpServer.Addr)
	}
	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	s.addr = ln.Addr()
	s.running = true
	return ln, s.httpServer, nil
}

// Stop shuts the server down, waiting up to timeout for in-flight requests
func (s *Server) Stop(timeout time.Duration) error {
	if !s.IsRunning() {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopChan) })

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.RLock()
	server := s.httpServer
	s.mu.RUnlock()
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown incomplete", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}

	s.setRunning(false)
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}

// Addr returns the bound address once Start has listened
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// IsRunning reports whether the server is serving
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleHealth answers /health when no monitor is attached
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
