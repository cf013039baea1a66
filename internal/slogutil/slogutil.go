package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// silentLevel sits above every standard level.
const silentLevel = slog.Level(100)

// Options selects the output of a logger built by New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // "human" (default) or "json"
	File   string // append to this file instead of Output
	Output io.Writer

	// MaxSize rotates File once it reaches this size ("10MB"); empty disables.
	MaxSize    string
	MaxBackups int
}

// New builds a logger from options. The returned closer is non-nil when a
// file was opened and must be closed by the caller.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer
	if opts.File != "" {
		f, err := OpenRotatingFile(opts.File, ParseSize(opts.MaxSize), opts.MaxBackups)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = f
	}

	level := LevelFromString(opts.Level)
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "", "human", "text":
		h = NewLineHandler(w, &slog.HandlerOptions{Level: level})
	default:
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(h), closer, nil
}

// NewLogger creates a line-format logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewLineHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewDiscardLogger creates a logger that discards all output.
func NewDiscardLogger() *slog.Logger {
	return slog.New(NewLineHandler(io.Discard, &slog.HandlerOptions{Level: silentLevel}))
}

// LevelFromString converts a string to a slog.Level.
// Unrecognized strings map to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "off", "silent", "none":
		return silentLevel
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbosity converts CLI verbosity flags to a slog.Level.
//   - quiet: nothing is logged
//   - 0: warn
//   - 1: info
//   - 2+: debug
func LevelFromVerbosity(verbosity int, quiet bool) slog.Level {
	if quiet {
		return silentLevel
	}
	switch verbosity {
	case 0:
		return slog.LevelWarn
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
