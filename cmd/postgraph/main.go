// Package main runs the postgraph GraphQL gateway: posts stored in MongoDB,
// users served by the remote identity service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/c360/postgraph/config"
	"github.com/c360/postgraph/events"
	"github.com/c360/postgraph/gateway/graphql"
	"github.com/c360/postgraph/gateway/policy"
	"github.com/c360/postgraph/health"
	"github.com/c360/postgraph/identity"
	"github.com/c360/postgraph/metric"
	"github.com/c360/postgraph/natsclient"
	"github.com/c360/postgraph/pkg/ratelimit"
	"github.com/c360/postgraph/resolver"
	"github.com/c360/postgraph/storage"
	"github.com/c360/postgraph/storage/memstore"
	"github.com/c360/postgraph/storage/mongostore"
	"github.com/c360/postgraph/userservice"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "postgraph"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, logger, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	ctx := context.Background()
	app, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	return runWithSignalHandling(ctx, app, cfg, cliCfg.ShutdownTimeout, logger)
}

// initializeCLI parses flags and loads the optional dotenv file
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	flags := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(flags, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(flags)
		return nil, true, nil
	}

	if err := loadEnvFile(cliCfg.EnvFile); err != nil {
		return nil, false, err
	}
	return cliCfg, false, nil
}

// loadEnvFile exports a dotenv file without overriding variables already set
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// initializeConfiguration loads configuration and builds the process logger.
// Log flags take precedence over the configured log section.
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, *slog.Logger, error) {
	cfg, err := config.NewLoader().WithFile(cliCfg.ConfigPath).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if cliCfg.LogLevel != "" {
		level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		format = cliCfg.LogFormat
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	logger.Info("Starting postgraph",
		"version", Version,
		"build_time", BuildTime,
		"environment", cfg.Environment,
		"config_path", cliCfg.ConfigPath)

	return cfg, logger, nil
}

// application holds everything built at startup that needs closing
type application struct {
	server  *graphql.Server
	monitor *health.Monitor
	limiter ratelimit.Limiter
	users   userservice.Client
	store   storage.PostStore
	nats    *natsclient.Client
	closers []func(context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("Shutdown step failed", "error", err)
		}
	}
}

func (a *application) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// setupInfrastructure connects the backing services and assembles the server
func setupInfrastructure(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *application, err error) {
	app = &application{}
	defer func() {
		if err != nil {
			app.close(logger)
		}
	}()

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	if err := setupStore(ctx, app, cfg, logger); err != nil {
		return app, err
	}

	httpUsers, err := userservice.NewHTTPClient(cfg.UserService,
		userservice.WithRecorder(metrics),
		userservice.WithLogger(logger))
	if err != nil {
		return app, fmt.Errorf("create identity service client: %w", err)
	}
	app.users, err = userservice.NewCachingClient(ctx, httpUsers, cfg.AuthorCache.TTL(), logger)
	if err != nil {
		return app, fmt.Errorf("create author cache: %w", err)
	}
	if c, ok := app.users.(*userservice.CachingClient); ok {
		app.onClose(func(context.Context) error { return c.Close() })
	}

	publisher, err := setupEvents(ctx, app, cfg, registry, logger)
	if err != nil {
		return app, err
	}

	resolvers, err := resolver.New(resolver.Deps{
		Store:   app.store,
		Users:   app.users,
		Events:  publisher,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return app, fmt.Errorf("create resolvers: %w", err)
	}

	app.limiter, err = ratelimit.New(ctx, cfg.RateLimit, logger)
	if err != nil {
		return app, fmt.Errorf("create rate limiter: %w", err)
	}
	app.onClose(func(context.Context) error { return app.limiter.Close() })

	loginPolicy, err := policy.New(app.limiter,
		policy.WithRecorder(metrics),
		policy.WithLogger(logger))
	if err != nil {
		return app, fmt.Errorf("create request policy: %w", err)
	}

	app.monitor = health.NewMonitor(appName, metrics, logger)
	app.monitor.Register("store", true, app.store.Ping)
	if app.nats != nil {
		nc := app.nats
		app.monitor.Register("nats", false, func(context.Context) error {
			_, err := nc.RTT()
			return err
		})
	}

	extractor, err := identity.NewExtractor(cfg.Auth.JWTSecret, logger,
		identity.WithTrustedProxies(cfg.Server.TrustedProxies...))
	if err != nil {
		return app, fmt.Errorf("create identity extractor: %w", err)
	}

	schema, err := graphql.NewSchema(resolvers, cfg.Server, logger)
	if err != nil {
		return app, fmt.Errorf("parse schema: %w", err)
	}

	app.server, err = graphql.NewServer(cfg.Server, schema, extractor,
		graphql.WithPolicy(loginPolicy),
		graphql.WithHealth(app.monitor.Handler()),
		graphql.WithMetrics(registry.Handler()),
		graphql.WithLogger(logger))
	if err != nil {
		return app, fmt.Errorf("create server: %w", err)
	}
	if err := app.server.Setup(); err != nil {
		return app, fmt.Errorf("setup server: %w", err)
	}

	return app, nil
}

func setupStore(ctx context.Context, app *application, cfg *config.Config, logger *slog.Logger) error {
	if cfg.UsesMemoryStore() {
		logger.Warn("Using in-memory post store, posts are lost on restart")
		app.store = memstore.New()
		return nil
	}

	store, err := mongostore.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		return fmt.Errorf("connect post store: %w", err)
	}
	app.store = store
	app.onClose(store.Close)
	return nil
}

func setupEvents(
	ctx context.Context, app *application, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger,
) (events.Publisher, error) {
	metrics := registry.CoreMetrics()
	if !cfg.NATS.Enabled() {
		logger.Info("NATS not configured, domain events disabled")
		return events.Nop{}, nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger),
		natsclient.WithHealthChangeCallback(metrics.RecordNATSStatus),
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	app.nats = client
	app.onClose(client.Close)

	stream, err := events.NewJetStreamPublisher(ctx, client, cfg.NATS.Events, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}

	publisher := events.NewAsyncPublisher(stream, cfg.NATS.Events, registry, logger)
	if err := publisher.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start event publisher: %w", err)
	}
	app.onClose(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			return publisher.Stop(5 * time.Second)
		}
		return publisher.Stop(time.Until(deadline))
	})
	return publisher, nil
}

// runWithSignalHandling serves until SIGINT or SIGTERM, or until the server
// or the health monitor fails
func runWithSignalHandling(
	ctx context.Context, app *application, cfg *config.Config, shutdownTimeout time.Duration, logger *slog.Logger,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	g, gctx := errgroup.WithContext(signalCtx)
	ready := make(chan struct{})

	g.Go(func() error {
		// Stopped by the goroutine below with shutdownTimeout.
		return app.server.Start(context.WithoutCancel(gctx), ready)
	})
	g.Go(func() error {
		return app.monitor.Run(gctx, cfg.Health.Interval())
	})
	g.Go(func() error {
		<-gctx.Done()
		if signalCtx.Err() != nil {
			logger.Info("Received shutdown signal")
		}
		return app.server.Stop(shutdownTimeout)
	})

	select {
	case <-ready:
		logger.Info("postgraph ready",
			"address", app.server.Addr().String(),
			"path", cfg.Server.Path)
	case <-gctx.Done():
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("postgraph shutdown complete")
	return nil
}
