package resolve

import (
	"context"
	"sync"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
	"github.com/stacklok/content-mirror/internal/telemetry"
)

// Cache is a single-slot memo of the most recent resolution.
// The slot is only valid for the exact input it was computed from.
type Cache struct {
	metrics *telemetry.ResolutionMetrics

	mu          sync.Mutex
	held        bool
	fingerprint Fingerprint
	result      []ResolvedRecord
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithCacheMetrics counts cache hits and misses
func WithCacheMetrics(metrics *telemetry.ResolutionMetrics) CacheOption {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// NewCache creates an empty cache
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the held result when input matches the input it was computed from,
// without calling compute. Otherwise it calls compute and, on success, replaces the slot.
// A failed compute leaves the slot as it was.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	input []content.Record,
	compute func() ([]ResolvedRecord, error),
) ([]ResolvedRecord, error) {
	fp, err := FingerprintOf(input)
	if err != nil {
		return nil, mirrorerr.Resolution("fingerprint input", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.held && c.fingerprint == fp {
		c.metrics.RecordCacheLookup(ctx, true)
		return c.result, nil
	}
	c.metrics.RecordCacheLookup(ctx, false)

	result, err := compute()
	if err != nil {
		return nil, err
	}

	c.held = true
	c.fingerprint = fp
	c.result = result
	return result, nil
}

// Reset empties the slot
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.held = false
	c.fingerprint = Fingerprint{}
	c.result = nil
}
