// Package content defines the records mirrored from the upstream content repository:
// entries, assets, their locale-grouped fields and the links between them.
//
// Records are treated as immutable once built. Stores, the sync coordinator and the
// resolver share them freely without copying.
package content

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind distinguishes entries from assets. It doubles as the link type of a Link.
type Kind string

const (
	// KindEntry is a structured content entry with a content type
	KindEntry Kind = "Entry"

	// KindAsset is a binary asset (image, file) described by its metadata fields
	KindAsset Kind = "Asset"
)

// Valid reports whether k is one of the known record kinds
func (k Kind) Valid() bool {
	return k == KindEntry || k == KindAsset
}

// Fields maps a field name to its per-locale values: field -> locale code -> value.
type Fields map[string]map[string]Value

// Record is a single entry or asset.
type Record struct {
	ID          string
	Kind        Kind
	ContentType string
	Fields      Fields
}

// NewEntry builds an entry record
func NewEntry(id, contentType string, fields Fields) Record {
	return Record{ID: id, Kind: KindEntry, ContentType: contentType, Fields: fields}
}

// NewAsset builds an asset record
func NewAsset(id string, fields Fields) Record {
	return Record{ID: id, Kind: KindAsset, Fields: fields}
}

// IsEntry reports whether the record is an entry
func (r Record) IsEntry() bool {
	return r.Kind == KindEntry
}

// IsAsset reports whether the record is an asset
func (r Record) IsAsset() bool {
	return r.Kind == KindAsset
}

// Validate checks the record has the attributes every store relies on
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("record %s: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

// wire shapes shared with the upstream sync API
type recordSys struct {
	ID          string      `json:"id"`
	Type        Kind        `json:"type"`
	ContentType *linkObject `json:"contentType,omitempty"`
}

type wireRecord struct {
	Sys    recordSys `json:"sys"`
	Fields Fields    `json:"fields"`
}

// MarshalJSON encodes the record in the upstream shape: {"sys": {...}, "fields": {...}}
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		Sys:    recordSys{ID: r.ID, Type: r.Kind},
		Fields: r.Fields,
	}
	if w.Fields == nil {
		w.Fields = Fields{}
	}
	if r.ContentType != "" {
		w.Sys.ContentType = &linkObject{Sys: linkSys{Type: linkTypeName, LinkType: "ContentType", ID: r.ContentType}}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a record from the upstream shape
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.Sys.ID
	r.Kind = w.Sys.Type
	r.ContentType = ""
	if w.Sys.ContentType != nil {
		r.ContentType = w.Sys.ContentType.Sys.ID
	}
	r.Fields = w.Fields
	return nil
}

// SortRecords orders records by kind (entries first) and then by id.
// Stores return records in this order so repeated reads of unchanged data are identical.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Kind != records[j].Kind {
			return records[i].Kind == KindEntry
		}
		return records[i].ID < records[j].ID
	})
}

// IDs returns the identifiers of the given records, in order
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// Partition splits records into entries and assets, preserving order
func Partition(records []Record) (entries, assets []Record) {
	for _, r := range records {
		if r.IsAsset() {
			assets = append(assets, r)
		} else {
			entries = append(entries, r)
		}
	}
	return entries, assets
}
