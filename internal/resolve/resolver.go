// Package resolve expands the links between mirrored records.
//
// A Resolver replaces every link placeholder in a batch of entries with the record it
// points at, resolved recursively against the same lookup map. Fields stay grouped by
// locale. Links that cannot be expanded (missing target, cycle, depth limit) become
// Unresolved markers instead of failing the batch. Within one top-level entry each target
// is expanded once; later links to it share that *ResolvedRecord.
//
// A Cache memoizes the most recent resolution, keyed by a fingerprint of its exact input.
package resolve

import (
	"fmt"
	"maps"
	"slices"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

// Resolver resolves links between records. The zero value resolves to unlimited depth.
type Resolver struct {
	maxDepth int
}

// Option configures a Resolver
type Option func(*Resolver)

// WithMaxDepth stops expanding links more than n hops away from a top-level entry.
// Zero or a negative n means unlimited.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		r.maxDepth = n
	}
}

// NewResolver creates a resolver
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns one resolved record per entry, in input order. Records that appear only
// as link targets are embedded, never returned at the top level. The only error is a
// malformed record or link, reported as a resolution error.
func (r *Resolver) Resolve(entries []content.Record, lookup LookupMap) ([]ResolvedRecord, error) {
	out := make([]ResolvedRecord, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, mirrorerr.Resolution("resolve", err)
		}
		w := &walker{
			lookup:   lookup,
			maxDepth: r.maxDepth,
			chain:    map[content.Link]struct{}{},
			expanded: map[expansion]*ResolvedRecord{},
		}
		rec, err := w.record(e, 0)
		if err != nil {
			return nil, mirrorerr.Resolution("resolve", fmt.Errorf("entry %s: %w", e.ID, err))
		}
		out = append(out, rec)
	}
	return out, nil
}

// walker resolves one top-level entry. chain holds the records on the current recursion
// path; a link back into it is a cycle. expanded keeps every finished expansion so dense
// link graphs cost one expansion per target instead of one per path.
type walker struct {
	lookup   LookupMap
	maxDepth int
	chain    map[content.Link]struct{}
	expanded map[expansion]*ResolvedRecord
}

// expansion keys a finished expansion. depth is only set under a depth limit, where the
// same target is cut at a different hop depending on where it is reached.
type expansion struct {
	link  content.Link
	depth int
}

func (w *walker) record(rec content.Record, depth int) (ResolvedRecord, error) {
	self := content.Link{Kind: rec.Kind, ID: rec.ID}
	w.chain[self] = struct{}{}
	defer delete(w.chain, self)

	// sorted, so which link expands a shared target first does not depend on map order
	fields := make(ResolvedFields, len(rec.Fields))
	for _, name := range slices.Sorted(maps.Keys(rec.Fields)) {
		locales := rec.Fields[name]
		resolved := make(map[string]ResolvedValue, len(locales))
		for _, locale := range slices.Sorted(maps.Keys(locales)) {
			rv, err := w.value(locales[locale], depth)
			if err != nil {
				return ResolvedRecord{}, fmt.Errorf("field %s (%s): %w", name, locale, err)
			}
			resolved[locale] = rv
		}
		fields[name] = resolved
	}

	return ResolvedRecord{
		ID:          rec.ID,
		Kind:        rec.Kind,
		ContentType: rec.ContentType,
		Fields:      fields,
	}, nil
}

func (w *walker) value(v content.Value, depth int) (ResolvedValue, error) {
	if l, ok := v.Link(); ok {
		return w.link(l, depth)
	}
	if ls, ok := v.Links(); ok {
		items := make([]ResolvedValue, len(ls))
		for i, l := range ls {
			item, err := w.link(l, depth)
			if err != nil {
				return ResolvedValue{}, err
			}
			items[i] = item
		}
		return ResolvedValue{items: items}, nil
	}
	scalar, _ := v.Scalar()
	return ResolvedValue{scalar: scalar}, nil
}

func (w *walker) link(l content.Link, depth int) (ResolvedValue, error) {
	if err := l.Validate(); err != nil {
		return ResolvedValue{}, err
	}

	target, ok := w.lookup[l.ID]
	if !ok || target.Kind != l.Kind {
		return unresolved(l, ReasonMissing), nil
	}
	if _, onChain := w.chain[l]; onChain {
		return unresolved(l, ReasonCycle), nil
	}
	if w.maxDepth > 0 && depth+1 > w.maxDepth {
		return unresolved(l, ReasonDepth), nil
	}

	key := expansion{link: l}
	if w.maxDepth > 0 {
		key.depth = depth + 1
	}
	if rec, ok := w.expanded[key]; ok {
		return ResolvedValue{record: rec}, nil
	}

	rec, err := w.record(target, depth+1)
	if err != nil {
		return ResolvedValue{}, fmt.Errorf("link %s: %w", l, err)
	}
	w.expanded[key] = &rec
	return ResolvedValue{record: &rec}, nil
}

func unresolved(l content.Link, reason Reason) ResolvedValue {
	return ResolvedValue{unresolved: &Unresolved{Link: l, Reason: reason}}
}
