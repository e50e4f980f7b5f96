package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/content-mirror/internal/api"
	"github.com/stacklok/content-mirror/internal/config"
	"github.com/stacklok/content-mirror/internal/httpclient"
	"github.com/stacklok/content-mirror/internal/mirror"
	"github.com/stacklok/content-mirror/internal/resolve"
	"github.com/stacklok/content-mirror/internal/store"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
	"github.com/stacklok/content-mirror/internal/sync/poller"
	"github.com/stacklok/content-mirror/internal/sync/state"
	"github.com/stacklok/content-mirror/internal/telemetry"
	"github.com/stacklok/content-mirror/internal/upstream"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 45 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	tracerName = "github.com/stacklok/content-mirror"
)

// MirrorAppOptions is a function that configures the mirror app builder
type MirrorAppOptions func(*mirrorAppConfig) error

// mirrorAppConfig collects the builder inputs. Component overrides exist for tests.
type mirrorAppConfig struct {
	config *config.Config

	upstreamClient upstream.Client
	store          store.Store

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	metricsHandler http.Handler

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func baseConfig(opts ...MirrorAppOptions) (*mirrorAppConfig, error) {
	cfg := &mirrorAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetServerAddress()
	}

	return cfg, nil
}

// NewMirrorApp builds every component and the HTTP server. The caller runs it with Start
// and releases it with Stop.
func NewMirrorApp(ctx context.Context, opts ...MirrorAppOptions) (*MirrorApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components.Mirror)
	if err != nil {
		_ = components.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &MirrorApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// BuildComponents builds the mirror without an HTTP server, for one-shot commands.
// The caller must Close the result.
func BuildComponents(ctx context.Context, opts ...MirrorAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides the listen address from the configuration
func WithAddress(addr string) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithUpstreamClient replaces the HTTP sync API client built from the configuration
func WithUpstreamClient(c upstream.Client) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.upstreamClient = c
		return nil
	}
}

// WithStore replaces the store built from the configuration. The caller keeps ownership.
func WithStore(s store.Store) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithMeterProvider enables sync, resolution and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider enables spans for sync rounds, reads and HTTP requests
func WithTracerProvider(tp trace.TracerProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildUpstreamClient creates the sync API client described by the configuration
func buildUpstreamClient(cfg *config.UpstreamConfig) (upstream.Client, error) {
	token, err := cfg.GetAccessToken()
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream access token: %w", err)
	}

	httpClient := httpclient.NewDefaultClient(
		httpclient.WithTimeout(cfg.GetTimeout()),
		httpclient.WithMaxRetries(cfg.GetMaxRetries()),
		httpclient.WithBearerToken(token),
	)
	return upstream.NewHTTPClient(httpClient, cfg.BaseURL, cfg.SpaceID, cfg.GetEnvironment()), nil
}

// buildComponents wires upstream, store, state, coordinator, mirror and poller
func buildComponents(ctx context.Context, b *mirrorAppConfig) (*AppComponents, error) {
	slog.Info("Initializing mirror components")
	components := &AppComponents{}

	client := b.upstreamClient
	if client == nil {
		var err error
		client, err = buildUpstreamClient(&b.config.Upstream)
		if err != nil {
			return nil, err
		}
	}

	st := b.store
	if st == nil {
		var err error
		st, err = store.New(ctx, &b.config.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		components.closers = append(components.closers, st.Close)
	}
	components.Store = st

	var stateStore state.Store
	if path := b.config.GetStatePath(); path != "" {
		if b.store == nil && !b.config.Storage.Durable() {
			_ = components.Close()
			return nil, fmt.Errorf("sync state at %s needs durable storage, got %s", path, b.config.Storage.GetType())
		}
		fs, err := state.NewFileStore(path)
		if err != nil {
			_ = components.Close()
			return nil, fmt.Errorf("failed to create state store: %w", err)
		}
		stateStore = fs
		slog.Info("Sync state persistence enabled", "path", path)
	}

	coordOpts := []mirrorsync.Option{mirrorsync.WithContentType(b.config.Upstream.ContentType)}
	mirrorOpts := []mirror.Option{}
	cacheOpts := []resolve.CacheOption{}

	if stateStore != nil {
		coordOpts = append(coordOpts, mirrorsync.WithStateStore(stateStore))
	}

	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			_ = components.Close()
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		coordOpts = append(coordOpts, mirrorsync.WithSyncMetrics(syncMetrics))

		resolutionMetrics, err := telemetry.NewResolutionMetrics(b.meterProvider)
		if err != nil {
			_ = components.Close()
			return nil, fmt.Errorf("failed to create resolution metrics: %w", err)
		}
		mirrorOpts = append(mirrorOpts, mirror.WithResolutionMetrics(resolutionMetrics))
		cacheOpts = append(cacheOpts, resolve.WithCacheMetrics(resolutionMetrics))
		slog.Info("Sync and resolution metrics enabled")
	}

	if b.tracerProvider != nil {
		tracer := b.tracerProvider.Tracer(tracerName)
		coordOpts = append(coordOpts, mirrorsync.WithTracer(tracer))
		mirrorOpts = append(mirrorOpts, mirror.WithTracer(tracer))
	}

	coordinator := mirrorsync.NewCoordinator(client, st, coordOpts...)
	if err := coordinator.Restore(ctx); err != nil {
		_ = components.Close()
		return nil, fmt.Errorf("failed to restore sync cursor: %w", err)
	}
	components.Coordinator = coordinator

	mirrorOpts = append(mirrorOpts,
		mirror.WithResolver(resolve.NewResolver(resolve.WithMaxDepth(b.config.GetMaxDepth()))),
		mirror.WithCache(resolve.NewCache(cacheOpts...)),
	)
	components.Mirror = mirror.New(coordinator, st, mirrorOpts...)

	var pollerOpts []poller.Option
	if stateStore != nil {
		pollerOpts = append(pollerOpts, poller.WithStateStore(stateStore))
	}
	components.Poller = poller.New(coordinator, b.config.GetSyncInterval(), pollerOpts...)

	slog.Info("Mirror components initialized successfully",
		"storage", b.config.Storage.GetType(),
		"sync_interval", b.config.GetSyncInterval(),
	)
	return components, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *mirrorAppConfig,
	svc mirror.Service,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// metrics and tracing go first so they also see requests that later middleware rejects
	var telemetryMiddlewares []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		telemetryMiddlewares = append(telemetryMiddlewares, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		telemetryMiddlewares = append(telemetryMiddlewares, metricsMiddleware)
		slog.Info("HTTP metrics middleware enabled")
	}
	middlewares := append(telemetryMiddlewares, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
