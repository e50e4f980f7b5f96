package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers of a mirror process
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures New
type Option func(*options)

type options struct {
	config     *Config
	registerer prometheus.Registerer
}

// WithTelemetryConfig sets the telemetry section of the mirror configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithPrometheusRegisterer sets where Prometheus-exported metrics are registered
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New builds both providers from the configuration. A nil or disabled configuration yields
// no-op providers. Callers must Shutdown the result on exit.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.config == nil || !o.config.Enabled {
		slog.Debug("Telemetry disabled")
		return newTelemetry(ctx)
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	slog.Info("Initializing telemetry",
		"service_name", o.config.GetServiceName(),
		"service_version", o.config.GetServiceVersion(),
	)
	providerOpts := append(o.config.providerOptions(), WithRegisterer(o.registerer))
	return newTelemetry(ctx, providerOpts...)
}

func newTelemetry(ctx context.Context, opts ...ProviderOption) (*Telemetry, error) {
	tp, err := NewTracerProvider(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	mp, err := NewMeterProvider(ctx, opts...)
	if err != nil {
		// release the span exporter created above
		_ = shutdown(ctx, tp)
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	return &Telemetry{tracerProvider: tp, meterProvider: mp}, nil
}

// TracerProvider returns the tracer provider handed to the sync coordinator and HTTP server
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the meter provider the mirror's instruments are created from
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Tracer returns a named tracer
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a named meter
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return t.meterProvider.Meter(name, opts...)
}

// Shutdown flushes pending spans and metrics. Calling it again is harmless.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	err := errors.Join(
		shutdown(ctx, t.tracerProvider),
		shutdown(ctx, t.meterProvider),
	)
	if err != nil {
		return err
	}
	slog.Debug("Telemetry shutdown complete")
	return nil
}

// shutdown stops SDK providers; no-op providers have nothing to flush
func shutdown(ctx context.Context, provider any) error {
	sp, ok := provider.(interface{ Shutdown(context.Context) error })
	if !ok {
		return nil
	}
	if err := sp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown %T: %w", provider, err)
	}
	return nil
}
