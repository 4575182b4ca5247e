// Package log centralizes structured logging for notesd. It follows the
// teacher pattern of a single package-level zerolog.Logger initialized once
// at process start, with WithComponent child loggers tagging every
// subsystem's output so operators can grep by component.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured by Init.
var Logger zerolog.Logger

// Level is a recognized minimum severity (spec §6.7 LOG_LEVEL).
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Call once at process start, before
// any component logger is created.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with the given component name,
// e.g. "daemon", "consolidator", "boundary".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithProcessID tags a child logger with the process id token recorded in
// the lock file (see lock.NewProcessID).
func WithProcessID(logger zerolog.Logger, processID string) zerolog.Logger {
	return logger.With().Str("process_id", processID).Logger()
}

// RingBuffer keeps the last N formatted log lines in memory for the
// SIGUSR1 status snapshot (spec §4.11); it implements io.Writer so it can
// be chained into a zerolog MultiLevelWriter alongside the normal sink.
type RingBuffer struct {
	lines []string
	cap   int
	next  int
	full  bool
}

// NewRingBuffer creates a buffer holding at most capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{lines: make([]string, capacity), cap: capacity}
}

func (r *RingBuffer) Write(p []byte) (int, error) {
	r.lines[r.next] = string(p)
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
	return len(p), nil
}

// Lines returns the buffered lines in chronological order.
func (r *RingBuffer) Lines() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, r.cap)
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}
