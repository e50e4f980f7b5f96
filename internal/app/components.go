package app

import (
	"context"
	"errors"

	"github.com/stacklok/content-mirror/internal/mirror"
	"github.com/stacklok/content-mirror/internal/store"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
)

// Background is a loop that runs next to the HTTP server until stopped
type Background interface {
	Start(ctx context.Context) error
	Stop() error
}

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator owns the sync cursor
	Coordinator *mirrorsync.Coordinator

	// Mirror serves reads, syncing first
	Mirror mirror.Service

	// Poller syncs on an interval while serving
	Poller Background

	// Store is the local record store
	Store store.Store

	// closers release what the builder opened, in order
	closers []func() error
}

// Close releases the store and anything else the builder opened
func (c *AppComponents) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
