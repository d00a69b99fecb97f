package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log records go.
type Options struct {
	// Dir enables level-split rotated files when non-empty.
	Dir string
	// Level is the minimum level written to the console.
	Level slog.Level
	// Prefix names the log files, e.g. "warehouse" -> warehouse_warn.log.
	Prefix string
}

var (
	mu     gosync.RWMutex
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Init installs the process logger. Console output is always on:
// records below WARN go to stdout, WARN and above to stderr.
// With opts.Dir set, records are also written to rotated files:
//   - <prefix>_warn.log  WARN + ERROR
//   - <prefix>_info.log  INFO only
//   - <prefix>_debug.log DEBUG only
func Init(opts Options) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "warehouse"
	}

	handlers := []slog.Handler{
		newConsoleHandler(os.Stdout, os.Stderr, opts.Level),
		errRing,
	}

	if opts.Dir != "" {
		os.MkdirAll(opts.Dir, 0750) //nolint:errcheck
		handlers = append(handlers,
			slog.NewTextHandler(rotated(opts.Dir, prefix+"_warn.log", 100, 3),
				&slog.HandlerOptions{Level: slog.LevelWarn}),
			onlyLevel(slog.LevelInfo, rotated(opts.Dir, prefix+"_info.log", 5, 1)),
			onlyLevel(slog.LevelDebug, rotated(opts.Dir, prefix+"_debug.log", 5, 1)),
		)
	}

	l := slog.New(&fanout{handlers: handlers})
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Use replaces the process logger; tests use it to capture output.
func Use(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the process logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sub returns a child logger tagged with the component name.
func Sub(component string) *slog.Logger {
	return L().With("comp", component)
}

// Enabled reports whether level is enabled. Guards costly debug attrs.
func Enabled(level slog.Level) bool {
	return L().Enabled(context.Background(), level)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown names fall back to INFO.
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

func rotated(dir, name string, maxSizeMB, backups int) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    maxSizeMB,
		MaxBackups: backups,
	}
}
