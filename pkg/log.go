package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Engine component identifiers.
const (
	ComponentCodec     Component = "codec"
	ComponentTransport Component = "transport"
	ComponentTransfer  Component = "transfer"
	ComponentSession   Component = "session"
	ComponentCLI       Component = "cli"
)

// LogFormat selects the handler used by [NewLogger].
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

var (
	// DefaultLogger receives every component log record.
	DefaultLogger *slog.Logger

	// logLevel is shared by every logger built with a nil level.
	logLevel = new(slog.LevelVar)

	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = NewLogger(os.Stderr, LogFormatText, nil)
}

// NewLogger builds a logger writing format records to w. A nil level
// follows [SetLogLevel].
func NewLogger(w io.Writer, format LogFormat, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = logLevel
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLogOutput redirects component logging to w in the given format.
func SetLogOutput(w io.Writer, format LogFormat) {
	SetLogger(NewLogger(w, format, nil))
}

// SetLogger replaces the default logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogLevel sets the minimum level of loggers that follow the shared level.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LogLevel returns the shared minimum level.
func LogLevel() slog.Level {
	return logLevel.Level()
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a
// slog.Level. The second result is false for unknown names.
func ParseLogLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}

// logAt skips building the attribute list for disabled levels; per-chunk
// debug records are frequent during transfers.
func logAt(level slog.Level, component Component, msg string, args []any) {
	logMutex.RLock()
	l := DefaultLogger
	logMutex.RUnlock()

	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, msg, append([]any{"component", string(component)}, args...)...)
}
