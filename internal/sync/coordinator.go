package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
	"github.com/stacklok/content-mirror/internal/otel"
	"github.com/stacklok/content-mirror/internal/store"
	"github.com/stacklok/content-mirror/internal/sync/state"
	"github.com/stacklok/content-mirror/internal/telemetry"
	"github.com/stacklok/content-mirror/internal/upstream"
)

// Result describes one completed sync round
type Result struct {
	// RoundID identifies the round in logs and traces
	RoundID string `json:"roundId"`

	// Cursor is the cursor held after the round
	Cursor string `json:"cursor"`

	// Initial is true when the round started without a cursor
	Initial bool `json:"initial"`

	// NoOp is true when upstream reported no changes since the held cursor
	NoOp bool `json:"noop"`

	EntriesUpserted int `json:"entriesUpserted"`
	AssetsUpserted  int `json:"assetsUpserted"`
	EntriesDeleted  int `json:"entriesDeleted"`
	AssetsDeleted   int `json:"assetsDeleted"`

	Duration time.Duration `json:"duration"`
}

// Coordinator runs sync rounds against one upstream and one store
type Coordinator struct {
	upstream upstream.Client
	store    store.Store

	contentType string
	stateStore  state.Store
	syncMetrics *telemetry.SyncMetrics
	tracer      trace.Tracer

	// roundMu serializes rounds; cursorMu guards cursor so Cursor() never waits on a round
	roundMu  stdsync.Mutex
	cursorMu stdsync.RWMutex
	cursor   string

	// commitMu is write-held while a round applies its batch and adopts the cursor, and
	// read-held by ReadCommitted
	commitMu stdsync.RWMutex
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithContentType narrows the initial sync to entries of one content type
func WithContentType(contentType string) Option {
	return func(c *Coordinator) {
		c.contentType = contentType
	}
}

// WithStateStore persists the cursor after every committed round. Call Restore to
// resume from the persisted cursor.
func WithStateStore(s state.Store) Option {
	return func(c *Coordinator) {
		c.stateStore = s
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *Coordinator) {
		c.syncMetrics = metrics
	}
}

// WithTracer sets the tracer used for round spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// NewCoordinator creates a coordinator with no cursor
func NewCoordinator(client upstream.Client, st store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		upstream: client,
		store:    st,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore loads the persisted cursor. It is a no-op without a state store.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.stateStore == nil {
		return nil
	}

	c.roundMu.Lock()
	defer c.roundMu.Unlock()

	status, err := c.stateStore.Load(ctx)
	if err != nil {
		return mirrorerr.Store("restore cursor", err)
	}
	c.setCursor(status.Cursor)

	if status.Cursor != "" {
		slog.Info("Restored sync cursor", "last_sync", status.LastSyncTime)
	}
	return nil
}

// Cursor returns the cursor of the last committed round, empty before the first one
func (c *Coordinator) Cursor() string {
	c.cursorMu.RLock()
	defer c.cursorMu.RUnlock()
	return c.cursor
}

func (c *Coordinator) setCursor(cursor string) {
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()
	c.cursor = cursor
}

// Sync runs one round: fetch the delta since the held cursor, apply it and adopt the new
// cursor. Errors are *mirrorerr.Error of kind SYNC wrapping the upstream or store failure;
// the held cursor is unchanged when an error is returned.
func (c *Coordinator) Sync(ctx context.Context) (*Result, error) {
	c.roundMu.Lock()
	defer c.roundMu.Unlock()

	start := time.Now()
	held := c.Cursor()
	result := &Result{
		RoundID: uuid.NewString(),
		Cursor:  held,
		Initial: held == "",
	}
	logger := slog.With("round_id", result.RoundID)

	ctx, span := otel.StartSpan(ctx, c.tracer, "sync.Round",
		trace.WithAttributes(
			otel.AttrSyncRound.String(result.RoundID),
			otel.AttrSyncInitial.Bool(result.Initial),
			otel.AttrHasCursor.Bool(held != ""),
		),
	)
	defer span.End()

	fail := func(err error) (*Result, error) {
		err = mirrorerr.Sync("sync", err)
		otel.RecordError(span, err)
		c.syncMetrics.RecordSyncDuration(ctx, time.Since(start), telemetry.SyncOutcomeFailed, result.Initial)
		logger.Error("Sync round failed", "initial", result.Initial, "error", err)
		return nil, err
	}

	query := upstream.Query{Cursor: held}
	if result.Initial {
		query = upstream.Query{Initial: true, ContentType: c.contentType}
		logger.Info("Starting initial sync", "content_type", c.contentType)
	} else {
		logger.Debug("Starting delta sync")
	}

	batch, err := c.upstream.Sync(ctx, query)
	if err != nil {
		if _, classified := mirrorerr.KindOf(err); !classified {
			err = mirrorerr.Upstream("fetch delta", err)
		}
		return fail(err)
	}
	if batch == nil || batch.Cursor == "" {
		return fail(mirrorerr.New(mirrorerr.KindUpstreamFetch, "fetch delta", "upstream returned no cursor"))
	}

	if batch.Cursor == held {
		result.NoOp = true
		result.Duration = time.Since(start)
		span.SetAttributes(otel.AttrSyncNoOp.Bool(true))
		c.syncMetrics.RecordSyncDuration(ctx, result.Duration, telemetry.SyncOutcomeNoOp, result.Initial)
		logger.Debug("Sync round is a no-op, cursor unchanged")
		return result, nil
	}

	if err := c.commit(ctx, batch); err != nil {
		return fail(err)
	}

	result.Cursor = batch.Cursor
	result.EntriesUpserted = len(batch.Entries)
	result.AssetsUpserted = len(batch.Assets)
	result.EntriesDeleted = len(batch.DeletedEntryIDs)
	result.AssetsDeleted = len(batch.DeletedAssetIDs)
	result.Duration = time.Since(start)

	span.SetAttributes(
		otel.AttrSyncNoOp.Bool(false),
		otel.AttrEntryCount.Int(result.EntriesUpserted),
		otel.AttrAssetCount.Int(result.AssetsUpserted),
		otel.AttrDeletedCount.Int(result.EntriesDeleted+result.AssetsDeleted),
	)
	c.recordApplied(ctx, result)

	logger.Info("Sync round applied",
		"initial", result.Initial,
		"entries_upserted", result.EntriesUpserted,
		"assets_upserted", result.AssetsUpserted,
		"entries_deleted", result.EntriesDeleted,
		"assets_deleted", result.AssetsDeleted,
		"duration", result.Duration)

	return result, nil
}

// ReadCommitted runs fn while no round is applying. Store reads made inside fn see the
// batches of whole rounds only, never the entries of a round without its assets.
func (c *Coordinator) ReadCommitted(fn func() error) error {
	c.commitMu.RLock()
	defer c.commitMu.RUnlock()
	return fn()
}

func (c *Coordinator) commit(ctx context.Context, batch *upstream.DeltaBatch) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	if err := c.apply(ctx, batch); err != nil {
		return err
	}
	if err := c.persistCursor(ctx, batch.Cursor); err != nil {
		return err
	}
	c.setCursor(batch.Cursor)
	return nil
}

// apply writes the four parts of a batch concurrently and waits for all of them.
// The first failure cancels the context of the others.
func (c *Coordinator) apply(ctx context.Context, batch *upstream.DeltaBatch) error {
	g, gctx := errgroup.WithContext(ctx)

	if len(batch.Entries) > 0 {
		g.Go(func() error { return c.store.StoreEntries(gctx, batch.Entries) })
	}
	if len(batch.Assets) > 0 {
		g.Go(func() error { return c.store.StoreAssets(gctx, batch.Assets) })
	}
	if len(batch.DeletedEntryIDs) > 0 {
		g.Go(func() error { return c.store.RemoveByIDs(gctx, batch.DeletedEntryIDs) })
	}
	if len(batch.DeletedAssetIDs) > 0 {
		g.Go(func() error { return c.store.RemoveByIDs(gctx, batch.DeletedAssetIDs) })
	}

	if err := g.Wait(); err != nil {
		if !errors.Is(err, mirrorerr.ErrStore) {
			err = mirrorerr.Store("apply delta", err)
		}
		return err
	}
	// a cancellation that raced the last apply still fails the round
	if err := ctx.Err(); err != nil {
		return mirrorerr.Store("apply delta", err)
	}
	return nil
}

func (c *Coordinator) persistCursor(ctx context.Context, cursor string) error {
	if c.stateStore == nil {
		return nil
	}
	now := time.Now()
	_, err := c.stateStore.UpdateAtomically(ctx, func(s *state.Status) bool {
		s.Cursor = cursor
		s.LastSyncTime = &now
		return true
	})
	if err != nil {
		return mirrorerr.Store("persist cursor", fmt.Errorf("failed to save sync state: %w", err))
	}
	return nil
}

func (c *Coordinator) recordApplied(ctx context.Context, r *Result) {
	c.syncMetrics.RecordSyncDuration(ctx, r.Duration, telemetry.SyncOutcomeApplied, r.Initial)
	c.syncMetrics.RecordApplied(ctx, string(content.KindEntry), "upsert", r.EntriesUpserted)
	c.syncMetrics.RecordApplied(ctx, string(content.KindAsset), "upsert", r.AssetsUpserted)
	c.syncMetrics.RecordApplied(ctx, string(content.KindEntry), "delete", r.EntriesDeleted)
	c.syncMetrics.RecordApplied(ctx, string(content.KindAsset), "delete", r.AssetsDeleted)
}
