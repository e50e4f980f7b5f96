package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	empty := &Config{}
	assert.Equal(t, DefaultServiceName, empty.GetServiceName())
	assert.Equal(t, "unknown", empty.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, empty.GetEndpoint())
	assert.False(t, empty.GetInsecure())

	set := &Config{ServiceName: "mirror-eu", ServiceVersion: "1.2.3", Endpoint: "otel:4318", Insecure: true}
	assert.Equal(t, "mirror-eu", set.GetServiceName())
	assert.Equal(t, "1.2.3", set.GetServiceVersion())
	assert.Equal(t, "otel:4318", set.GetEndpoint())
	assert.True(t, set.GetInsecure())
}

func TestTracingConfig_GetSampling(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, DefaultSampling, (&TracingConfig{}).GetSampling(), 1e-9)
	assert.InDelta(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling(), 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{name: "nil config", config: nil},
		{name: "disabled config skips checks", config: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 7}}},
		{
			name:   "valid full config",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1}, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}},
		},
		{
			name:    "sampling above one",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name:    "negative sampling",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}},
			wantErr: "sampling must be between",
		},
		{
			name:    "prometheus without metrics",
			config:  &Config{Enabled: true, Metrics: &MetricsConfig{Prometheus: true}},
			wantErr: "metrics: prometheus export requires metrics to be enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PrometheusEnabled(t *testing.T) {
	t.Parallel()

	var nilConfig *Config
	assert.False(t, nilConfig.PrometheusEnabled())
	assert.False(t, (&Config{Metrics: &MetricsConfig{Enabled: true, Prometheus: true}}).PrometheusEnabled())
	assert.False(t, (&Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}}).PrometheusEnabled())
	assert.True(t, (&Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}}).PrometheusEnabled())
}

func TestConfig_ProviderOptions(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Enabled:        true,
		ServiceName:    "mirror-eu",
		ServiceVersion: "1.2.3",
		Endpoint:       "otel:4318",
		Insecure:       true,
		Tracing:        &TracingConfig{Enabled: true},
		Metrics:        &MetricsConfig{Enabled: true},
	}
	s := newProviderSettings(cfg.providerOptions())

	assert.Equal(t, "mirror-eu", s.serviceName)
	assert.Equal(t, "1.2.3", s.serviceVersion)
	assert.Equal(t, "otel:4318", s.endpoint)
	assert.True(t, s.insecure)
	assert.Same(t, cfg.Tracing, s.tracing)
	assert.Same(t, cfg.Metrics, s.metrics)
}
