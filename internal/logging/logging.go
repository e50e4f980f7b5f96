// Package logging builds the process-wide slog handler: JSON lines written by zap,
// bridged to slog through logr, with OpenTelemetry trace ids attached to every record.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures the handler
type Option func(*options)

type options struct {
	level slog.Level
	core  zapcore.Core
}

// WithLevel sets the minimum level that is written
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// withCore replaces the zap core, used by tests to observe output
func withCore(core zapcore.Core) Option {
	return func(o *options) {
		o.core = core
	}
}

// NewHandler returns the slog handler and a function flushing buffered output
func NewHandler(opts ...Option) (slog.Handler, func() error, error) {
	o := &options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}

	var z *zap.Logger
	if o.core != nil {
		z = zap.New(o.core)
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel(o.level))
		cfg.Sampling = nil
		cfg.OutputPaths = []string{"stderr"}
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

		var err error
		z, err = cfg.Build()
		if err != nil {
			return nil, nil, err
		}
	}

	base := logr.ToSlogHandler(zapr.NewLogger(z))
	return &traceHandler{Handler: base, level: o.level}, z.Sync, nil
}

// zapLevel maps a slog level to the zap level its records arrive at through logr:
// slog debug becomes logr V(4), which zapr writes at zap level -4.
func zapLevel(level slog.Level) zapcore.Level {
	if level < slog.LevelInfo {
		return zapcore.Level(level)
	}
	return zapcore.InfoLevel
}

// LevelFromEnv reads CONTENT_MIRROR_LOG_LEVEL, then LOG_LEVEL. Unknown values mean info.
func LevelFromEnv(envPrefix string) slog.Level {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	return ParseLevel(levelStr)
}

// ParseLevel converts a level name to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// traceHandler drops records below level and adds trace_id and span_id to the rest
type traceHandler struct {
	slog.Handler
	level slog.Level
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.Handler.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name), level: h.level}
}
