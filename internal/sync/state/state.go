// Package state persists the sync cursor and sync status of the mirror, so a
// restarted process resumes with a delta sync instead of a full initial fetch.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=state.go Store

// Store persists the sync status
type Store interface {
	// Load returns the persisted status. An empty status is returned on first run.
	Load(ctx context.Context) (*Status, error)

	// Save overwrites the persisted status
	Save(ctx context.Context, status *Status) error

	// UpdateAtomically loads the status, applies fn and saves the result if fn reports
	// a change, all while holding the store lock. It returns whether the status was saved.
	UpdateAtomically(ctx context.Context, fn func(status *Status) bool) (bool, error)
}

// FileStore keeps the status in a single JSON file
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed status store writing to path
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the status file. A missing file yields an empty status.
func (f *FileStore) Load(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// Save writes the status file atomically
func (f *FileStore) Save(ctx context.Context, status *Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if status == nil {
		return fmt.Errorf("status cannot be nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(status)
}

// UpdateAtomically applies fn to the current status and saves it when fn returns true
func (f *FileStore) UpdateAtomically(ctx context.Context, fn func(status *Status) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if err != nil {
		return false, err
	}
	if !fn(current) {
		return false, nil
	}
	if err := f.save(current); err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileStore) load() (*Status, error) {
	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Status{}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	return &status, nil
}

func (f *FileStore) save(status *Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}
