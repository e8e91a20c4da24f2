// Package logging provides centralized logging configuration for the
// Sidekick client library.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// globalLogger is the library-wide logger
	globalLogger *slog.Logger
	globalMu     sync.RWMutex

	// logWriter holds the rotating log file writer (if any) for cleanup
	logWriter   io.WriteCloser
	logWriterMu sync.Mutex

	// allowedComponents stores the set of components to log (empty means all)
	allowedComponents map[string]bool
	componentsMu      sync.RWMutex
)

// FileLogConfig holds configuration for file-based logging with rotation.
type FileLogConfig struct {
	// Path is the file path for the log file. Empty disables file logging.
	Path string
	// MaxSizeMB is the maximum size of the log file in megabytes before
	// rotation. Default: 10MB
	MaxSizeMB int
	// MaxBackups is the maximum number of old log files to retain.
	// Default: 3
	MaxBackups int
	// Compress determines if rotated log files should be compressed.
	Compress bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// FileLog is the optional configuration for rotated file output.
	FileLog *FileLogConfig
	// JSON enables JSON output format
	JSON bool
	// Components is a list of component names to include (empty means all)
	Components []string
}

// Initialize sets up the global logger with the given configuration.
// Logs always go to stderr; if FileLog is configured they additionally go
// to a rotated file via lumberjack.
func Initialize(cfg Config) error {
	level := parseLevel(cfg.Level)

	componentsMu.Lock()
	if len(cfg.Components) > 0 {
		allowedComponents = make(map[string]bool)
		for _, c := range cfg.Components {
			allowedComponents[c] = true
		}
	} else {
		allowedComponents = nil // nil means all components allowed
	}
	componentsMu.Unlock()

	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.FileLog != nil && cfg.FileLog.Path != "" {
		maxSize := cfg.FileLog.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.FileLog.MaxBackups
		if maxBackups < 0 {
			maxBackups = 3
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FileLog.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   cfg.FileLog.Compress,
		}
		logWriter = lj
		w = io.MultiWriter(os.Stderr, lj)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	globalMu.Lock()
	globalLogger = slog.New(handler)
	globalMu.Unlock()

	return nil
}

// Get returns the global logger.
// If Initialize hasn't been called, returns slog.Default().
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close cleans up logging resources (closes the rotated log file if open).
func Close() error {
	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		err := logWriter.Close()
		logWriter = nil
		return err
	}
	return nil
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isComponentAllowed checks if a component should be logged.
func isComponentAllowed(component string) bool {
	componentsMu.RLock()
	defer componentsMu.RUnlock()

	if allowedComponents == nil {
		return true
	}
	return allowedComponents[component]
}

// componentFilterHandler wraps a slog.Handler and filters based on component.
type componentFilterHandler struct {
	inner     slog.Handler
	component string
}

func (h *componentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !isComponentAllowed(h.component) {
		return false
	}
	return h.inner.Enabled(ctx, level)
}

func (h *componentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if !isComponentAllowed(h.component) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentFilterHandler{
		inner:     h.inner.WithAttrs(attrs),
		component: h.component,
	}
}

func (h *componentFilterHandler) WithGroup(name string) slog.Handler {
	return &componentFilterHandler{
		inner:     h.inner.WithGroup(name),
		component: h.component,
	}
}

// WithComponent returns a logger with a component attribute.
// If component filtering is enabled and this component is not in the
// allowed list, the returned logger is a no-op logger.
func WithComponent(component string) *slog.Logger {
	base := Get()
	handler := &componentFilterHandler{
		inner:     base.Handler().WithAttrs([]slog.Attr{slog.String("component", component)}),
		component: component,
	}
	return slog.New(handler)
}

// Engine returns a logger for session engine events.
func Engine() *slog.Logger {
	return WithComponent("engine")
}

// Transport returns a logger for transport events.
func Transport() *slog.Logger {
	return WithComponent("transport")
}

// Endpoint returns a logger for endpoint selection events.
func Endpoint() *slog.Logger {
	return WithComponent("endpoint")
}

// Facade returns a logger for public API events.
func Facade() *slog.Logger {
	return WithComponent("facade")
}

// ConfigLog returns a logger for configuration events.
func ConfigLog() *slog.Logger {
	return WithComponent("config")
}
