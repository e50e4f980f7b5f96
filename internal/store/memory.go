package store

import (
	"context"
	"sync"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]content.Record
	assets  map[string]content.Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]content.Record),
		assets:  make(map[string]content.Record),
	}
}

// GetAllEntries returns every stored entry
func (m *MemoryStore) GetAllEntries(_ context.Context) ([]content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(m.entries), nil
}

// GetAllAssets returns every stored asset
func (m *MemoryStore) GetAllAssets(_ context.Context) ([]content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(m.assets), nil
}

// GetAll returns entries followed by assets under one read lock
func (m *MemoryStore) GetAll(_ context.Context) ([]content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(collect(m.entries), collect(m.assets)...), nil
}

// StoreEntries upserts entries by ID
func (m *MemoryStore) StoreEntries(ctx context.Context, entries []content.Record) error {
	return m.put(ctx, "store entries", m.entries, entries, content.KindEntry)
}

// StoreAssets upserts assets by ID
func (m *MemoryStore) StoreAssets(ctx context.Context, assets []content.Record) error {
	return m.put(ctx, "store assets", m.assets, assets, content.KindAsset)
}

func (m *MemoryStore) put(ctx context.Context, op string, into map[string]content.Record,
	records []content.Record, kind content.Kind) error {
	if err := ctx.Err(); err != nil {
		return mirrorerr.Store(op, err)
	}
	if err := checkKind(records, kind); err != nil {
		return mirrorerr.Store(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		into[r.ID] = r
	}
	return nil
}

// RemoveByIDs deletes records of either kind with the given IDs
func (m *MemoryStore) RemoveByIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return mirrorerr.Store("remove records", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
		delete(m.assets, id)
	}
	return nil
}

// Close is a no-op
func (*MemoryStore) Close() error {
	return nil
}

func collect(records map[string]content.Record) []content.Record {
	out := make([]content.Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	content.SortRecords(out)
	return out
}
