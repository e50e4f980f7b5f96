// Package mirror is the caller-facing surface of the content mirror.
//
// Every read syncs first and fails outright when the sync fails, so callers never see a
// partial or stale-by-error result. Resolved reads go through a single-slot cache keyed by
// the exact records read from the store.
package mirror

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
	"github.com/stacklok/content-mirror/internal/otel"
	"github.com/stacklok/content-mirror/internal/resolve"
	"github.com/stacklok/content-mirror/internal/store"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
	"github.com/stacklok/content-mirror/internal/telemetry"
)

// ErrNotSynced is returned by CheckReadiness before the first committed sync round
var ErrNotSynced = errors.New("mirror has not completed a sync round")

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=mirror.go Service

// Service defines the operations exposed to callers of the mirror
type Service interface {
	// CheckReadiness reports whether a sync round has been committed
	CheckReadiness(ctx context.Context) error

	// GetEntries syncs, then returns all entries
	GetEntries(ctx context.Context) ([]content.Record, error)

	// GetAssets syncs, then returns all assets
	GetAssets(ctx context.Context) ([]content.Record, error)

	// GetAll syncs, then returns entries followed by assets
	GetAll(ctx context.Context) ([]content.Record, error)

	// GetResolvedEntries syncs, then returns all entries with their links resolved
	GetResolvedEntries(ctx context.Context) ([]resolve.ResolvedRecord, error)

	// Sync runs one sync round
	Sync(ctx context.Context) (*mirrorsync.Result, error)
}

// Syncer is the part of the sync coordinator the mirror depends on
type Syncer interface {
	Sync(ctx context.Context) (*mirrorsync.Result, error)
	Cursor() string

	// ReadCommitted runs fn while no round is applying
	ReadCommitted(fn func() error) error
}

// Mirror implements Service on top of a sync coordinator and a store
type Mirror struct {
	syncer   Syncer
	store    store.Store
	resolver *resolve.Resolver
	cache    *resolve.Cache

	resolutionMetrics *telemetry.ResolutionMetrics
	tracer            trace.Tracer
}

var _ Service = (*Mirror)(nil)

// Option configures a Mirror
type Option func(*Mirror)

// WithResolver replaces the default resolver (unlimited depth)
func WithResolver(r *resolve.Resolver) Option {
	return func(m *Mirror) {
		m.resolver = r
	}
}

// WithCache replaces the default resolution cache
func WithCache(c *resolve.Cache) Option {
	return func(m *Mirror) {
		m.cache = c
	}
}

// WithResolutionMetrics records the duration of resolution passes
func WithResolutionMetrics(metrics *telemetry.ResolutionMetrics) Option {
	return func(m *Mirror) {
		m.resolutionMetrics = metrics
	}
}

// WithTracer sets the tracer used for read spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Mirror) {
		m.tracer = tracer
	}
}

// New creates a mirror reading from st after syncing through syncer
func New(syncer Syncer, st store.Store, opts ...Option) *Mirror {
	m := &Mirror{
		syncer: syncer,
		store:  st,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resolver == nil {
		m.resolver = resolve.NewResolver()
	}
	if m.cache == nil {
		m.cache = resolve.NewCache()
	}
	return m
}

// CheckReadiness implements Service.CheckReadiness
func (m *Mirror) CheckReadiness(_ context.Context) error {
	if m.syncer.Cursor() == "" {
		return ErrNotSynced
	}
	return nil
}

// Sync implements Service.Sync
func (m *Mirror) Sync(ctx context.Context) (*mirrorsync.Result, error) {
	return m.syncer.Sync(ctx)
}

// GetEntries implements Service.GetEntries
func (m *Mirror) GetEntries(ctx context.Context) ([]content.Record, error) {
	return m.read(ctx, "mirror.GetEntries", "get entries", m.store.GetAllEntries)
}

// GetAssets implements Service.GetAssets
func (m *Mirror) GetAssets(ctx context.Context) ([]content.Record, error) {
	return m.read(ctx, "mirror.GetAssets", "get assets", m.store.GetAllAssets)
}

// GetAll implements Service.GetAll
func (m *Mirror) GetAll(ctx context.Context) ([]content.Record, error) {
	return m.read(ctx, "mirror.GetAll", "get all", m.store.GetAll)
}

func (m *Mirror) read(
	ctx context.Context,
	spanName, op string,
	get func(context.Context) ([]content.Record, error),
) ([]content.Record, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, spanName)
	defer span.End()

	if _, err := m.syncer.Sync(ctx); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	var records []content.Record
	err := m.syncer.ReadCommitted(func() error {
		var err error
		records, err = get(ctx)
		return err
	})
	if err != nil {
		err = classifyStore(op, err)
		otel.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(records)))
	return records, nil
}

// GetResolvedEntries implements Service.GetResolvedEntries.
// Entries and the assets they may link to come from one store read made between rounds, so
// the lookup map never mixes two sync generations. Broken links become markers and never
// fail the call.
func (m *Mirror) GetResolvedEntries(ctx context.Context) ([]resolve.ResolvedRecord, error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "mirror.GetResolvedEntries")
	defer span.End()

	if _, err := m.syncer.Sync(ctx); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	var records []content.Record
	err := m.syncer.ReadCommitted(func() error {
		var err error
		records, err = m.store.GetAll(ctx)
		return err
	})
	if err != nil {
		err = classifyStore("get all", err)
		otel.RecordError(span, err)
		return nil, err
	}
	entries, assets := content.Partition(records)

	computed := false
	resolved, err := m.cache.GetOrCompute(ctx, records, func() ([]resolve.ResolvedRecord, error) {
		computed = true
		start := time.Now()
		out, err := m.resolver.Resolve(entries, resolve.NewLookupMap(entries, assets))
		if err != nil {
			return nil, err
		}
		m.resolutionMetrics.RecordResolution(ctx, time.Since(start), len(entries))
		return out, nil
	})
	if err != nil {
		otel.RecordError(span, err)
		slog.Error("Failed to resolve entries", "error", err)
		return nil, err
	}

	unresolved := 0
	for _, r := range resolved {
		unresolved += len(r.Unresolved())
	}
	if computed && unresolved > 0 {
		slog.Warn("Resolved entries contain unresolved links", "entries", len(resolved), "unresolved", unresolved)
	}

	span.SetAttributes(
		otel.AttrCacheHit.Bool(!computed),
		otel.AttrResultCount.Int(len(resolved)),
		otel.AttrUnresolvedRefs.Int(unresolved),
	)
	return resolved, nil
}

// classifyStore wraps store failures that are not classified yet
func classifyStore(op string, err error) error {
	if _, ok := mirrorerr.KindOf(err); ok {
		return err
	}
	return mirrorerr.Store(op, err)
}
