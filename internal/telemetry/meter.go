package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultMetricsInterval is how often metrics are pushed to an OTLP collector
const DefaultMetricsInterval = 60 * time.Second

// NewMeterProvider returns an SDK meter provider for the mirror's sync, resolution and HTTP
// instruments, or a no-op provider when metrics are not enabled. Metrics are either pushed
// over OTLP or pulled through the Prometheus registerer. Callers must Shutdown the SDK provider.
func NewMeterProvider(ctx context.Context, opts ...ProviderOption) (metric.MeterProvider, error) {
	s := newProviderSettings(opts)
	if !s.metrics.enabled() {
		slog.Debug("Metrics disabled, measurements are dropped")
		return noop.NewMeterProvider(), nil
	}

	res, err := s.resource(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := s.metricReader(ctx)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	if s.metrics.Prometheus {
		slog.Info("Metrics initialized", "export", "prometheus")
	} else {
		slog.Info("Metrics initialized", "export", "otlp", "endpoint", s.endpoint, "interval", DefaultMetricsInterval)
	}
	return mp, nil
}

func (s *providerSettings) metricReader(ctx context.Context) (sdkmetric.Reader, error) {
	if s.metrics.Prometheus {
		exporter, err := otelprom.New(otelprom.WithRegisterer(s.registerer))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus metrics exporter: %w", err)
		}
		return exporter, nil
	}

	exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(DefaultMetricsInterval)), nil
}
