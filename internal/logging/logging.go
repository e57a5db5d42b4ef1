package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New builds a slog logger writing to stdout. Format is "json" (default) or "text".
func New(cfg Config) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Sink accepts structured progress events (episode returns, learner steps).
// Implementations must not block the caller for long.
type Sink interface {
	Write(ctx context.Context, event map[string]any)
}

type slogSink struct {
	logger *slog.Logger
	msg    string
}

func NewSlogSink(logger *slog.Logger, msg string) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogSink{logger: logger, msg: msg}
}

func (s *slogSink) Write(ctx context.Context, event map[string]any) {
	keys := make([]string, 0, len(event))
	for k := range event {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event[k]))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, s.msg, attrs...)
}

type discard struct{}

func (discard) Write(context.Context, map[string]any) {}

var Discard Sink = discard{}

// NopLogger drops everything; used by tests.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
