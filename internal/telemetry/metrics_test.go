package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMeterProvider(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

// collectMetric returns the named metric recorded under scope, failing when absent
func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, scope, name string) metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != scope {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	require.Failf(t, "metric not found", "%s/%s", scope, name)
	return metricdata.Metrics{}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	t.Parallel()

	syncMetrics, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, syncMetrics)

	resolutionMetrics, err := NewResolutionMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, resolutionMetrics)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		syncMetrics.RecordSyncDuration(ctx, time.Second, SyncOutcomeApplied, true)
		syncMetrics.RecordApplied(ctx, "Entry", "upsert", 1)
		resolutionMetrics.RecordCacheLookup(ctx, true)
		resolutionMetrics.RecordResolution(ctx, time.Millisecond, 2)
	})
}

func TestSyncMetrics(t *testing.T) {
	t.Parallel()

	reader, mp := newTestMeterProvider(t)
	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordSyncDuration(ctx, 2*time.Second, SyncOutcomeApplied, true)
	metrics.RecordSyncDuration(ctx, time.Second, SyncOutcomeNoOp, false)
	metrics.RecordApplied(ctx, "Entry", "upsert", 4)
	metrics.RecordApplied(ctx, "Entry", "upsert", 1)
	metrics.RecordApplied(ctx, "Asset", "delete", 0)

	duration := collectMetric(t, reader, SyncMetricsMeterName, "content_mirror_sync_duration_seconds")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)

	applied := collectMetric(t, reader, SyncMetricsMeterName, "content_mirror_sync_records_total")
	sum, ok := applied.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	// zero counts are not recorded at all
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
}

func TestResolutionMetrics(t *testing.T) {
	t.Parallel()

	reader, mp := newTestMeterProvider(t)
	metrics, err := NewResolutionMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordCacheLookup(ctx, false)
	metrics.RecordCacheLookup(ctx, true)
	metrics.RecordCacheLookup(ctx, true)
	metrics.RecordResolution(ctx, 10*time.Millisecond, 3)

	lookups := collectMetric(t, reader, ResolutionMetricsMeterName, "content_mirror_resolution_cache_lookups_total")
	sum, ok := lookups.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byResult := map[string]int64{}
	for _, dp := range sum.DataPoints {
		result, _ := dp.Attributes.Value("result")
		byResult[result.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"hit": 2, "miss": 1}, byResult)

	duration := collectMetric(t, reader, ResolutionMetricsMeterName, "content_mirror_resolution_duration_seconds")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
