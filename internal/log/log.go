// Package log wraps log/slog for zedlogin. Records fan out to stderr and, when
// a debug directory is configured, to a daily JSONL file. Attributes whose
// keys look like credential material are redacted before any handler sees them.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// logger is read from chromedp and callback goroutines while exchanges swap
// in session loggers.
var logger atomic.Pointer[slog.Logger]

var fileWriter *FileWriter

// Options configures the logger.
type Options struct {
	// Verbose enables debug/info output to stderr.
	Verbose bool
	// JSONFormat uses JSON output format for stderr.
	JSONFormat bool
	// DebugDir is the directory for debug log files. If empty, file logging is disabled.
	DebugDir string
	// RetentionDays is how many days to keep log files (0 = no cleanup).
	RetentionDays int
	// Stderr is the writer for stderr output (defaults to os.Stderr).
	Stderr io.Writer
}

// Init initializes the global logger with the given options.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	stderrLevel := slog.LevelWarn
	if opts.Verbose {
		stderrLevel = slog.LevelDebug
	}
	stderrOpts := &slog.HandlerOptions{Level: stderrLevel, ReplaceAttr: redactAttr}

	var handlers []slog.Handler
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(stderr, stderrOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, stderrOpts))
	}

	Close()
	if opts.DebugDir != "" {
		if opts.RetentionDays > 0 {
			Cleanup(opts.DebugDir, opts.RetentionDays)
		}

		fw, err := NewFileWriter(opts.DebugDir)
		if err != nil {
			return err
		}
		fileWriter = fw
		handlers = append(handlers, slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{
			Level:       slog.LevelDebug,
			ReplaceAttr: redactAttr,
		}))
	}

	l := slog.New(&multiHandler{handlers: handlers})
	logger.Store(l)
	slog.SetDefault(l)
	return nil
}

// Close closes the file writer if one was created.
func Close() {
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// With returns a logger with additional context.
func With(args ...any) *slog.Logger {
	return logger.Load().With(args...)
}

// SetOutput sends all levels to w as text (for testing).
func SetOutput(w io.Writer) {
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: redactAttr,
	}))
	logger.Store(l)
	slog.SetDefault(l)
}

// WithSession runs fn with a session_id attribute attached to every record
// logged through this package, restoring the previous logger afterwards.
// Records logged concurrently from background goroutines during fn carry the
// session too.
func WithSession(sessionID string, fn func()) {
	prev := logger.Load()
	logger.Store(prev.With(slog.String("session_id", sessionID)))
	defer logger.Store(prev)
	fn()
}

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       slog.LevelWarn,
		ReplaceAttr: redactAttr,
	})))
}
