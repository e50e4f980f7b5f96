package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	mirrorapp "github.com/stacklok/content-mirror/internal/app"
	"github.com/stacklok/content-mirror/internal/telemetry"
	"github.com/stacklok/content-mirror/internal/versions"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP read API and the background sync poller",
		Long: `Start the HTTP read API and a poller that runs a sync round every
syncPolicy.interval. Every API read still syncs first.

Routes: /health, /readiness, /version, /v1/entries, /v1/assets, /v1/all,
/v1/entries/resolved, POST /v1/sync and, when Prometheus metrics are enabled, /metrics.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Telemetry != nil && cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = versions.Get().Version
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tel, err := telemetry.New(ctx,
		telemetry.WithTelemetryConfig(cfg.Telemetry),
		telemetry.WithPrometheusRegisterer(registry),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	opts := []mirrorapp.MirrorAppOptions{
		mirrorapp.WithConfig(cfg),
		mirrorapp.WithMeterProvider(tel.MeterProvider()),
		mirrorapp.WithTracerProvider(tel.TracerProvider()),
	}
	if address, _ := cmd.Flags().GetString("address"); address != "" {
		opts = append(opts, mirrorapp.WithAddress(address))
	}
	if cfg.Telemetry.PrometheusEnabled() {
		opts = append(opts, mirrorapp.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	mirrorApp, err := mirrorapp.NewMirrorApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mirror app: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- mirrorApp.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		_ = mirrorApp.Stop(defaultGracefulTimeout)
		return err
	}

	return mirrorApp.Stop(defaultGracefulTimeout)
}
