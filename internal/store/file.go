package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

const lockRetryDelay = 50 * time.Millisecond

// fileDocument is the on-disk layout of a FileStore
type fileDocument struct {
	Entries []content.Record `json:"entries"`
	Assets  []content.Record `json:"assets"`
}

// FileStore keeps the whole mirror in one JSON document. Writes go to a temporary file
// that is renamed over the document, under an exclusive file lock shared with other
// processes using the same path.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the JSON document at path.
// The parent directory is created when missing.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, mirrorerr.Store("open file store", fmt.Errorf("path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, mirrorerr.Store("open file store", fmt.Errorf("failed to create storage directory: %w", err))
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// GetAllEntries returns every stored entry
func (f *FileStore) GetAllEntries(ctx context.Context) ([]content.Record, error) {
	doc, err := f.read(ctx, "get entries")
	if err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// GetAllAssets returns every stored asset
func (f *FileStore) GetAllAssets(ctx context.Context) ([]content.Record, error) {
	doc, err := f.read(ctx, "get assets")
	if err != nil {
		return nil, err
	}
	return doc.Assets, nil
}

// GetAll returns entries followed by assets from one read of the document
func (f *FileStore) GetAll(ctx context.Context) ([]content.Record, error) {
	doc, err := f.read(ctx, "get all")
	if err != nil {
		return nil, err
	}
	return append(doc.Entries, doc.Assets...), nil
}

// StoreEntries upserts entries by ID
func (f *FileStore) StoreEntries(ctx context.Context, entries []content.Record) error {
	if err := checkKind(entries, content.KindEntry); err != nil {
		return mirrorerr.Store("store entries", err)
	}
	return f.update(ctx, "store entries", func(doc *fileDocument) {
		doc.Entries = upsert(doc.Entries, entries)
	})
}

// StoreAssets upserts assets by ID
func (f *FileStore) StoreAssets(ctx context.Context, assets []content.Record) error {
	if err := checkKind(assets, content.KindAsset); err != nil {
		return mirrorerr.Store("store assets", err)
	}
	return f.update(ctx, "store assets", func(doc *fileDocument) {
		doc.Assets = upsert(doc.Assets, assets)
	})
}

// RemoveByIDs deletes records of either kind with the given IDs
func (f *FileStore) RemoveByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return f.update(ctx, "remove records", func(doc *fileDocument) {
		doc.Entries = without(doc.Entries, drop)
		doc.Assets = without(doc.Assets, drop)
	})
}

// Close releases the file lock
func (f *FileStore) Close() error {
	return f.lock.Close()
}

func (f *FileStore) read(ctx context.Context, op string) (*fileDocument, error) {
	// all callers share one flock handle, so reads hold the in-process lock too
	f.mu.Lock()
	defer f.mu.Unlock()

	locked, err := f.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, mirrorerr.Store(op, fmt.Errorf("failed to acquire read lock: %w", lockErr(err)))
	}
	defer func() {
		_ = f.lock.Unlock()
	}()

	doc, err := f.load()
	if err != nil {
		return nil, mirrorerr.Store(op, err)
	}
	return doc, nil
}

func (f *FileStore) update(ctx context.Context, op string, mutate func(*fileDocument)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	locked, err := f.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return mirrorerr.Store(op, fmt.Errorf("failed to acquire write lock: %w", lockErr(err)))
	}
	defer func() {
		_ = f.lock.Unlock()
	}()

	doc, err := f.load()
	if err != nil {
		return mirrorerr.Store(op, err)
	}
	mutate(doc)
	if err := f.save(doc); err != nil {
		return mirrorerr.Store(op, err)
	}
	return nil
}

func (f *FileStore) load() (*fileDocument, error) {
	//nolint:gosec // File path comes from configuration, not request input
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileDocument{Entries: []content.Record{}, Assets: []content.Record{}}, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal store file: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = []content.Record{}
	}
	if doc.Assets == nil {
		doc.Assets = []content.Record{}
	}
	content.SortRecords(doc.Entries)
	content.SortRecords(doc.Assets)
	return &doc, nil
}

func (f *FileStore) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store file: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename store file: %w", err)
	}
	return nil
}

func lockErr(err error) error {
	if err == nil {
		return errors.New("lock not acquired")
	}
	return err
}

// upsert replaces records with matching IDs and appends the rest, keeping the result sorted
func upsert(existing, incoming []content.Record) []content.Record {
	byID := make(map[string]int, len(existing))
	for i, r := range existing {
		byID[r.ID] = i
	}
	for _, r := range incoming {
		if i, ok := byID[r.ID]; ok {
			existing[i] = r
			continue
		}
		byID[r.ID] = len(existing)
		existing = append(existing, r)
	}
	content.SortRecords(existing)
	return existing
}

func without(records []content.Record, drop map[string]struct{}) []content.Record {
	kept := records[:0]
	for _, r := range records {
		if _, ok := drop[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	return kept
}
