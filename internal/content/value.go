package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const linkTypeName = "Link"

// Link is a typed reference to another record.
type Link struct {
	Kind Kind
	ID   string
}

// Validate checks the link can be looked up
func (l Link) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("link id is required")
	}
	if !l.Kind.Valid() {
		return fmt.Errorf("link %s: unknown link type %q", l.ID, l.Kind)
	}
	return nil
}

func (l Link) String() string {
	return string(l.Kind) + ":" + l.ID
}

type linkSys struct {
	Type     string `json:"type"`
	LinkType string `json:"linkType"`
	ID       string `json:"id"`
}

type linkObject struct {
	Sys linkSys `json:"sys"`
}

// MarshalJSON encodes the link placeholder: {"sys":{"type":"Link","linkType":"Entry","id":"..."}}
func (l Link) MarshalJSON() ([]byte, error) {
	return json.Marshal(linkObject{Sys: linkSys{Type: linkTypeName, LinkType: string(l.Kind), ID: l.ID}})
}

// Value is one locale's value of a field. Exactly one representation is set:
// a single Link, an array of Links, or a scalar. Scalars carry the decoded JSON value
// (string, json.Number, bool, nil, []any, map[string]any), so an array of scalars is a
// scalar holding []any.
type Value struct {
	scalar any
	link   *Link
	links  []Link
}

// ScalarValue wraps a plain JSON value
func ScalarValue(v any) Value {
	return Value{scalar: v}
}

// LinkValue wraps a single link
func LinkValue(l Link) Value {
	return Value{link: &l}
}

// LinksValue wraps an array of links. A nil slice is stored as empty so the value
// stays an array of links.
func LinksValue(ls []Link) Value {
	if ls == nil {
		ls = []Link{}
	}
	return Value{links: ls}
}

// EntryLink is shorthand for a link to an entry
func EntryLink(id string) Link {
	return Link{Kind: KindEntry, ID: id}
}

// AssetLink is shorthand for a link to an asset
func AssetLink(id string) Link {
	return Link{Kind: KindAsset, ID: id}
}

// Scalar returns the scalar payload and whether the value is a scalar
func (v Value) Scalar() (any, bool) {
	if v.link != nil || v.links != nil {
		return nil, false
	}
	return v.scalar, true
}

// Link returns the link and whether the value is a single link
func (v Value) Link() (Link, bool) {
	if v.link == nil {
		return Link{}, false
	}
	return *v.link, true
}

// Links returns the links and whether the value is an array of links
func (v Value) Links() ([]Link, bool) {
	if v.links == nil {
		return nil, false
	}
	return v.links, true
}

// IsLink reports whether the value is a single link
func (v Value) IsLink() bool {
	return v.link != nil
}

// IsLinkArray reports whether the value is an array of links
func (v Value) IsLinkArray() bool {
	return v.links != nil
}

// MarshalJSON encodes the value in the upstream wire shape
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.link != nil:
		return v.link.MarshalJSON()
	case v.links != nil:
		return json.Marshal(v.links)
	default:
		return json.Marshal(v.scalar)
	}
}

// UnmarshalJSON decodes a value, recognising link placeholders and arrays made only of
// link placeholders. Numbers are kept as json.Number so values round-trip exactly.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromJSON(raw)
	return nil
}

// FromJSON classifies an already decoded JSON value
func FromJSON(raw any) Value {
	if l, ok := asLink(raw); ok {
		return LinkValue(l)
	}
	if arr, ok := raw.([]any); ok && len(arr) > 0 {
		links := make([]Link, 0, len(arr))
		for _, item := range arr {
			l, ok := asLink(item)
			if !ok {
				return ScalarValue(raw)
			}
			links = append(links, l)
		}
		return LinksValue(links)
	}
	return ScalarValue(raw)
}

// asLink recognises {"sys":{"type":"Link","linkType":...,"id":...}}
func asLink(raw any) (Link, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Link{}, false
	}
	sys, ok := obj["sys"].(map[string]any)
	if !ok {
		return Link{}, false
	}
	if t, _ := sys["type"].(string); t != linkTypeName {
		return Link{}, false
	}
	linkType, _ := sys["linkType"].(string)
	id, _ := sys["id"].(string)
	return Link{Kind: Kind(linkType), ID: id}, true
}
