package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := `{
		"sys": {"id": "post-1", "type": "Entry",
			"contentType": {"sys": {"type": "Link", "linkType": "ContentType", "id": "blogPost"}}},
		"fields": {
			"title": {"en-US": "Hello", "de-DE": "Hallo"},
			"author": {"en-US": {"sys": {"type": "Link", "linkType": "Entry", "id": "author-1"}}}
		}
	}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(in), &r))

	assert.Equal(t, "post-1", r.ID)
	assert.Equal(t, KindEntry, r.Kind)
	assert.Equal(t, "blogPost", r.ContentType)
	require.Contains(t, r.Fields, "title")
	assert.Len(t, r.Fields["title"], 2)

	author, ok := r.Fields["author"]["en-US"].Link()
	require.True(t, ok)
	assert.Equal(t, EntryLink("author-1"), author)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestRecord_MarshalJSON_AssetHasNoContentType(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(NewAsset("a1", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sys":{"id":"a1","type":"Asset"},"fields":{}}`, string(out))
}

func TestRecord_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewEntry("e1", "ct", nil).Validate())
	assert.Error(t, NewEntry("", "ct", nil).Validate())
	assert.Error(t, Record{ID: "x", Kind: "DeletedEntry"}.Validate())
}

func TestSortRecords(t *testing.T) {
	t.Parallel()

	records := []Record{
		NewAsset("a2", nil),
		NewEntry("e2", "ct", nil),
		NewAsset("a1", nil),
		NewEntry("e1", "ct", nil),
	}
	SortRecords(records)

	assert.Equal(t, []string{"e1", "e2", "a1", "a2"}, IDs(records))
}

func TestPartition(t *testing.T) {
	t.Parallel()

	entries, assets := Partition([]Record{
		NewEntry("e1", "ct", nil),
		NewAsset("a1", nil),
		NewEntry("e2", "ct", nil),
	})

	assert.Equal(t, []string{"e1", "e2"}, IDs(entries))
	assert.Equal(t, []string{"a1"}, IDs(assets))
}
