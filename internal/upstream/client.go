// Package upstream defines how the mirror talks to the remote content repository and
// provides an implementation for the paginated HTTP sync API.
package upstream

import (
	"context"

	"github.com/stacklok/content-mirror/internal/content"
)

// Query selects what a sync round fetches. Either Initial is set, optionally narrowed to
// one ContentType, or Cursor continues from a previous round.
type Query struct {
	Initial      bool
	Cursor       string
	ContentType  string
	ResolveLinks bool
}

// DeltaBatch is the set of changes since the cursor a round was started from
type DeltaBatch struct {
	// Cursor continues from the end of this batch. It equals the requested cursor when
	// nothing changed upstream.
	Cursor string

	Entries         []content.Record
	Assets          []content.Record
	DeletedEntryIDs []string
	DeletedAssetIDs []string
}

// Empty reports whether the batch carries no changes
func (b *DeltaBatch) Empty() bool {
	return len(b.Entries) == 0 && len(b.Assets) == 0 &&
		len(b.DeletedEntryIDs) == 0 && len(b.DeletedAssetIDs) == 0
}

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client fetches delta batches from the remote content repository
type Client interface {
	// Sync runs one sync round and returns everything that changed
	Sync(ctx context.Context, q Query) (*DeltaBatch, error)
}
