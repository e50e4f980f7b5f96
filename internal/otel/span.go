// Package otel provides span helpers and the attribute keys shared by the mirror's traces.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used across the mirror's spans
const (
	AttrSyncRound      = attribute.Key("sync.round_id")
	AttrSyncInitial    = attribute.Key("sync.initial")
	AttrSyncNoOp       = attribute.Key("sync.noop")
	AttrHasCursor      = attribute.Key("sync.has_cursor")
	AttrContentType    = attribute.Key("content.type")
	AttrEntryCount     = attribute.Key("content.entry_count")
	AttrAssetCount     = attribute.Key("content.asset_count")
	AttrDeletedCount   = attribute.Key("content.deleted_count")
	AttrResultCount    = attribute.Key("result.count")
	AttrCacheHit       = attribute.Key("resolution.cache_hit")
	AttrUnresolvedRefs = attribute.Key("resolution.unresolved_count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the span
// already in ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed. The status description stays
// generic so connection strings or upstream URLs never end up in it; the event keeps the detail.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
