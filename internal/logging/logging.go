// Package logging provides structured logging for coinlake.
//
// It wraps log/slog. Text output goes through tint (coloured when stderr is
// a terminal), JSON output through the standard JSON handler. Components
// receive a *slog.Logger through their constructors; Component is the
// fallback when a caller passes nil.
//
// Usage:
//
//	logging.Init(slog.LevelInfo, false)
//	log := logging.Component("objectstore")
//	log.Info("object stored", "bucket", bucket, "key", key)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise tint text.
func Init(level slog.Level, jsonFormat bool) {
	InitWithHandler(NewHandler(os.Stderr, level, jsonFormat))
}

// NewHandler builds the handler Init installs, writing to w.
func NewHandler(w io.Writer, level slog.Level, jsonFormat bool) slog.Handler {
	if jsonFormat {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: level == slog.LevelDebug,
		})
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
		if !noColor {
			w = colorable.NewColorable(f)
		}
	}

	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		AddSource:  level == slog.LevelDebug,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	})
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
//
//	log := logging.Component("tablestore")
//	log.Info("committed") // ... INF committed component=tablestore
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// OrComponent returns l when set, otherwise the named component logger.
func OrComponent(l *slog.Logger, name string) *slog.Logger {
	if l != nil {
		return l
	}
	return Component(name)
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
