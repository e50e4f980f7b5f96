// Package main is the entry point for the content-mirror binary.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/stacklok/content-mirror/cmd/content-mirror/app"
	"github.com/stacklok/content-mirror/internal/config"
	"github.com/stacklok/content-mirror/internal/logging"
)

func main() {
	// Logs go to stderr so that stdout stays clean for command output
	handler, flush, err := logging.NewHandler(logging.WithLevel(logging.LevelFromEnv(config.EnvPrefix)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(handler))

	err = app.NewRootCmd().Execute()
	_ = flush()
	if err != nil {
		os.Exit(1)
	}
}
