// Package log provides a minimal factory for structured slog loggers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes where log records go in addition to stdout.
type Options struct {
	// File, when set, mirrors every record into a size-rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet drops stdout; records only reach File, if set.
	Quiet bool
}

// New creates a [slog.Logger] that writes to stdout at the given level
// (one of "debug", "info", "warn", "error"; defaults to info).
func New(level string) *slog.Logger {
	return NewWithOptions(level, Options{})
}

// NewWithOptions is like [New] but can also write to a rotating file.
func NewWithOptions(level string, opts Options) *slog.Logger {
	return slog.New(slog.NewTextHandler(writer(os.Stdout, opts), &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component tags a logger with the module name, mirroring the
// "[Flo] ..." / "[Server] ..." prefixes of the console output.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", name)
}

// ParseLevel maps a level name to a [slog.Level].
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func writer(stdout io.Writer, opts Options) io.Writer {
	if opts.Quiet {
		stdout = io.Discard
	}
	file := strings.TrimSpace(opts.File)
	if file == "" {
		return stdout
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    defaultInt(opts.MaxSizeMB, 10),
		MaxBackups: defaultInt(opts.MaxBackups, 3),
		MaxAge:     defaultInt(opts.MaxAgeDays, 14),
	}
	if opts.Quiet {
		return rotating
	}
	return io.MultiWriter(stdout, rotating)
}

func defaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
