// Package app provides application lifecycle management for the content mirror server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/content-mirror/internal/config"
)

// MirrorApp runs the HTTP read API and the background sync poller
type MirrorApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the sync poller in the background and serves HTTP.
// It blocks until the HTTP server stops or fails.
func (app *MirrorApp) Start() error {
	go func() {
		if err := app.components.Poller.Start(app.ctx); err != nil {
			slog.Error("Sync poller failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop stops the poller, shuts the HTTP server down within timeout and closes the store
func (app *MirrorApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	if err := app.components.Poller.Stop(); err != nil {
		slog.Error("Failed to stop sync poller", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := app.httpServer.Shutdown(shutdownCtx)
	if err := app.components.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *MirrorApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *MirrorApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *MirrorApp) Components() *AppComponents {
	return app.components
}
