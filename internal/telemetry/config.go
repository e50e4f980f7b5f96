// Package telemetry provides OpenTelemetry instrumentation for the content mirror.
// Traces are exported over OTLP; metrics go to OTLP or to a Prometheus scrape endpoint.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName identifies the mirror in exported telemetry
	DefaultServiceName = "content-mirror"

	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio used when none is configured
	DefaultSampling = 0.05

	unknownVersion = "unknown"
)

// Config is the telemetry section of the mirror configuration.
// Nothing is exported unless Enabled is set and the signal's own Enabled flag is set too.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName defaults to DefaultServiceName
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the binary's version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is a host:port OTLP/HTTP collector; /v1/traces and /v1/metrics are appended
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure exports over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export for sync rounds, reads and HTTP requests
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is a ratio in [0, 1]. Zero means DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls export of the mirror's counters and histograms
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prometheus serves metrics on the API's /metrics endpoint instead of pushing them over OTLP
	Prometheus bool `yaml:"prometheus,omitempty"`
}

// GetServiceName returns the configured service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return unknownVersion
	}
	return c.ServiceVersion
}

// GetEndpoint returns the configured collector or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetInsecure reports whether export uses plain HTTP
func (c *Config) GetInsecure() bool {
	return c.Insecure
}

// PrometheusEnabled reports whether metrics are exposed for scraping
func (c *Config) PrometheusEnabled() bool {
	return c != nil && c.Enabled && c.Metrics.enabled() && c.Metrics.Prometheus
}

// providerOptions translates the configuration into provider options
func (c *Config) providerOptions() []ProviderOption {
	return []ProviderOption{
		WithService(c.GetServiceName(), c.GetServiceVersion()),
		WithCollector(c.GetEndpoint(), c.GetInsecure()),
		WithTracing(c.Tracing),
		WithMetrics(c.Metrics),
	}
}

// GetSampling returns the sampling ratio. A zero ratio cannot be told apart from an unset
// one in YAML, so it maps to DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

func (c *TracingConfig) enabled() bool {
	return c != nil && c.Enabled
}

func (c *MetricsConfig) enabled() bool {
	return c != nil && c.Enabled
}

// Validate checks the configuration. A nil or disabled configuration is always valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the sampling ratio of an enabled tracing configuration
func (c *TracingConfig) Validate() error {
	if !c.enabled() {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate rejects a Prometheus export on disabled metrics, which would serve an empty /metrics
func (c *MetricsConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Prometheus && !c.Enabled {
		return errors.New("prometheus export requires metrics to be enabled")
	}
	return nil
}
