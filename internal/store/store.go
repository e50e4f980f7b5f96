// Package store holds the local copy of the mirrored records.
//
// Every implementation keeps entries and assets keyed by ID, upserts on write,
// ignores unknown IDs on delete and returns records ordered by kind and then ID.
// Implementations are safe for concurrent use: the sync coordinator applies the
// parts of a delta in parallel.
package store

import (
	"context"
	"fmt"

	"github.com/stacklok/content-mirror/internal/content"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store persists mirrored entries and assets
type Store interface {
	// GetAllEntries returns every stored entry
	GetAllEntries(ctx context.Context) ([]content.Record, error)

	// GetAllAssets returns every stored asset
	GetAllAssets(ctx context.Context) ([]content.Record, error)

	// GetAll returns entries followed by assets from one consistent read
	GetAll(ctx context.Context) ([]content.Record, error)

	// StoreEntries upserts entries by ID
	StoreEntries(ctx context.Context, entries []content.Record) error

	// StoreAssets upserts assets by ID
	StoreAssets(ctx context.Context, assets []content.Record) error

	// RemoveByIDs deletes records of either kind whose ID is listed. Unknown IDs are ignored.
	RemoveByIDs(ctx context.Context, ids []string) error

	// Close releases the resources held by the store
	Close() error
}

// checkKind rejects records that do not belong to the collection they are written to
func checkKind(records []content.Record, kind content.Kind) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Kind != kind {
			return fmt.Errorf("record %s is an %s, expected %s", r.ID, r.Kind, kind)
		}
	}
	return nil
}
