package resolve

import (
	"encoding/json"

	"github.com/stacklok/content-mirror/internal/content"
)

// LookupMap indexes the records available as link targets by identifier
type LookupMap map[string]content.Record

// NewLookupMap indexes assets and then entries. When an entry and an asset share an
// identifier the entry is kept; links of the other kind then resolve as missing.
func NewLookupMap(entries, assets []content.Record) LookupMap {
	lookup := make(LookupMap, len(entries)+len(assets))
	for _, a := range assets {
		lookup[a.ID] = a
	}
	for _, e := range entries {
		lookup[e.ID] = e
	}
	return lookup
}

// Reason explains why a link was left unresolved
type Reason string

const (
	// ReasonMissing means the target is not in the lookup map (deleted or not yet synced)
	ReasonMissing Reason = "missing"

	// ReasonCycle means the target is already being resolved further up the chain
	ReasonCycle Reason = "cycle"

	// ReasonDepth means the target lies deeper than the configured maximum depth
	ReasonDepth Reason = "depth"
)

// Unresolved is the marker left in place of a link that could not be expanded
type Unresolved struct {
	Link   content.Link
	Reason Reason
}

// MarshalJSON encodes the original link placeholder with an extra "unresolved" member
func (u Unresolved) MarshalJSON() ([]byte, error) {
	placeholder, err := u.Link.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(placeholder, &obj); err != nil {
		return nil, err
	}
	reason, err := json.Marshal(u.Reason)
	if err != nil {
		return nil, err
	}
	obj["unresolved"] = reason
	return json.Marshal(obj)
}

// ResolvedValue is one locale's value after resolution. Exactly one representation is set:
// a scalar copied from the input, a resolved target record, an unresolved marker, or an
// array of resolved values (for an array of links).
type ResolvedValue struct {
	scalar     any
	record     *ResolvedRecord
	unresolved *Unresolved
	items      []ResolvedValue
}

// Scalar returns the scalar payload and whether the value is a scalar
func (v ResolvedValue) Scalar() (any, bool) {
	if v.record != nil || v.unresolved != nil || v.items != nil {
		return nil, false
	}
	return v.scalar, true
}

// Record returns the resolved link target
func (v ResolvedValue) Record() (*ResolvedRecord, bool) {
	return v.record, v.record != nil
}

// Unresolved returns the marker of a link that could not be expanded
func (v ResolvedValue) Unresolved() (Unresolved, bool) {
	if v.unresolved == nil {
		return Unresolved{}, false
	}
	return *v.unresolved, true
}

// Items returns the resolved elements of what was an array of links
func (v ResolvedValue) Items() ([]ResolvedValue, bool) {
	return v.items, v.items != nil
}

// MarshalJSON encodes the value: resolved targets in the record shape, markers as links
func (v ResolvedValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.record != nil:
		return json.Marshal(v.record)
	case v.unresolved != nil:
		return v.unresolved.MarshalJSON()
	case v.items != nil:
		return json.Marshal(v.items)
	default:
		return json.Marshal(v.scalar)
	}
}

// ResolvedFields maps field name -> locale code -> resolved value
type ResolvedFields map[string]map[string]ResolvedValue

// ResolvedRecord is a record whose links have been replaced by their targets
type ResolvedRecord struct {
	ID          string
	Kind        content.Kind
	ContentType string
	Fields      ResolvedFields
}

type resolvedSys struct {
	ID          string        `json:"id"`
	Type        content.Kind  `json:"type"`
	ContentType *content.Link `json:"contentType,omitempty"`
}

type wireResolvedRecord struct {
	Sys    resolvedSys    `json:"sys"`
	Fields ResolvedFields `json:"fields"`
}

// MarshalJSON encodes the record in the same shape as content.Record
func (r ResolvedRecord) MarshalJSON() ([]byte, error) {
	w := wireResolvedRecord{
		Sys:    resolvedSys{ID: r.ID, Type: r.Kind},
		Fields: r.Fields,
	}
	if w.Fields == nil {
		w.Fields = ResolvedFields{}
	}
	if r.ContentType != "" {
		w.Sys.ContentType = &content.Link{Kind: "ContentType", ID: r.ContentType}
	}
	return json.Marshal(w)
}

// Unresolved walks the record and returns every marker it contains, depth first.
// A record shared by several links is walked once.
func (r ResolvedRecord) Unresolved() []Unresolved {
	return r.appendUnresolved(nil, map[*ResolvedRecord]struct{}{})
}

func (r ResolvedRecord) appendUnresolved(out []Unresolved, seen map[*ResolvedRecord]struct{}) []Unresolved {
	for _, locales := range r.Fields {
		for _, v := range locales {
			out = v.appendUnresolved(out, seen)
		}
	}
	return out
}

func (v ResolvedValue) appendUnresolved(out []Unresolved, seen map[*ResolvedRecord]struct{}) []Unresolved {
	switch {
	case v.unresolved != nil:
		return append(out, *v.unresolved)
	case v.record != nil:
		if _, ok := seen[v.record]; ok {
			return out
		}
		seen[v.record] = struct{}{}
		return v.record.appendUnresolved(out, seen)
	default:
		for _, item := range v.items {
			out = item.appendUnresolved(out, seen)
		}
		return out
	}
}
