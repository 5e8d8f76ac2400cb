package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

// SetupOption adds a sink or a wrapper to the pipeline.
type SetupOption func(*setup)

type setup struct {
	serviceName string
	graylog     MessageWriter
	context     ContextProvider
}

// WithServiceName sets the instrumentation scope of the OTel bridge.
func WithServiceName(name string) SetupOption {
	return func(s *setup) { s.serviceName = name }
}

// WithGraylog also ships records to w as GELF messages.
func WithGraylog(w MessageWriter) SetupOption {
	return func(s *setup) { s.graylog = w }
}

// WithContext attaches the attributes returned by p to every record.
func WithContext(p ContextProvider) SetupOption {
	return func(s *setup) { s.context = p }
}

// SlogManager owns the process logger and the OTel log provider behind it.
type SlogManager struct {
	logger      *slog.Logger
	level       slog.Level
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager returns a manager whose Logger is slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a config level name to a slog.Level. Unknown names are
// info.
func ParseLevel(level string) slog.Level {
	switch normalizeLevel(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the pipeline. Records go to file, or to stdout when file is
// nil, and to the OTel bridge when provider is non-nil. Calling Setup again
// replaces the previous pipeline.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...SetupOption) {
	cfg := setup{serviceName: "playbackd"}
	for _, opt := range opts {
		opt(&cfg)
	}
	m.level = ParseLevel(level)
	m.logProvider = provider

	textOpts := &slog.HandlerOptions{
		Level: m.level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	out := file
	if out == nil {
		out = stdout
	}
	sinks := []slog.Handler{slog.NewTextHandler(out, textOpts)}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler(cfg.serviceName, otelslog.WithLoggerProvider(provider)))
	}
	if cfg.graylog != nil {
		sinks = append(sinks, NewGraylogHandler(cfg.graylog, cfg.serviceName, m.level))
	}

	var h slog.Handler = NewFanout(sinks...)
	if cfg.context != nil {
		h = NewContextHandler(h, cfg.context)
	}
	m.logger = slog.New(h)
	m.logger.Info("logging initialized", "level", m.level.String())
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Level returns the configured minimum level.
func (m *SlogManager) Level() slog.Level {
	return m.level
}

// Flush pushes buffered OTel records to their exporters.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
