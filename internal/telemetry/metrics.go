package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/content-mirror/sync"

	// ResolutionMetricsMeterName is the name used for the link resolution metrics meter
	ResolutionMetricsMeterName = "github.com/stacklok/content-mirror/resolve"
)

// Sync round outcomes recorded with the duration metric
const (
	SyncOutcomeApplied = "applied"
	SyncOutcomeNoOp    = "noop"
	SyncOutcomeFailed  = "failed"
)

// SyncMetrics holds the OpenTelemetry instruments for sync rounds
type SyncMetrics struct {
	syncDuration   metric.Float64Histogram
	recordsApplied metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"content_mirror_sync_duration_seconds",
		metric.WithDescription("Duration of sync rounds in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	recordsApplied, err := meter.Int64Counter(
		"content_mirror_sync_records_total",
		metric.WithDescription("Records upserted or deleted by sync rounds"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:   syncDuration,
		recordsApplied: recordsApplied,
	}, nil
}

// RecordSyncDuration records the duration and outcome of one sync round
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, outcome string, initial bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
		attribute.Bool("initial", initial),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordApplied counts records of one kind written or deleted by a sync round.
// operation is "upsert" or "delete".
func (m *SyncMetrics) RecordApplied(ctx context.Context, kind, operation string, count int) {
	if m == nil || m.recordsApplied == nil || count == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.String("operation", operation),
	}

	m.recordsApplied.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// ResolutionMetrics holds the OpenTelemetry instruments for link resolution
type ResolutionMetrics struct {
	cacheLookups       metric.Int64Counter
	resolutionDuration metric.Float64Histogram
}

// NewResolutionMetrics creates a new ResolutionMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewResolutionMetrics(provider metric.MeterProvider) (*ResolutionMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ResolutionMetricsMeterName)

	cacheLookups, err := meter.Int64Counter(
		"content_mirror_resolution_cache_lookups_total",
		metric.WithDescription("Resolution cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	resolutionDuration, err := meter.Float64Histogram(
		"content_mirror_resolution_duration_seconds",
		metric.WithDescription("Duration of link resolution passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	return &ResolutionMetrics{
		cacheLookups:       cacheLookups,
		resolutionDuration: resolutionDuration,
	}, nil
}

// RecordCacheLookup counts a cache hit or miss
func (m *ResolutionMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordResolution records how long a resolution pass over the given number of entries took
func (m *ResolutionMetrics) RecordResolution(ctx context.Context, duration time.Duration, entries int) {
	if m == nil || m.resolutionDuration == nil {
		return
	}

	m.resolutionDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Int("entries", entries)))
}
