// Package logger provides the control-plane structured logger used across
// the multiplexer (slog-based, with category-gated debug logging), plus a
// separate high-frequency FrameTracer for the deliverFrame/doneWithFrame
// hot path (see tracer.go).
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// LogLevel represents the logging verbosity level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory gates verbose logging for one subsystem of the
// multiplexer, so an operator can chase down e.g. master-protocol churn
// without drowning in per-frame delivery logs. Categories are bits in a
// mask rather than map keys, so a hot-path check is a single atomic load
// and an AND, not a lock.
type DebugCategory uint32

const (
	DebugDelivery DebugCategory = 1 << iota // per-frame dispatch decisions
	DebugMaster                             // master acquire/release/force
	DebugPool                               // changeFramesInFlight negotiation
	DebugFence                              // timeline issuance/signal

	debugAllMask = DebugDelivery | DebugMaster | DebugPool | DebugFence
)

// categoryNames backs the "category" attribute attached to each gated log
// line, in bit order.
var categoryNames = map[DebugCategory]string{
	DebugDelivery: "delivery",
	DebugMaster:   "master",
	DebugPool:     "pool",
	DebugFence:    "fence",
}

// OutputFormat determines the log output format.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config holds logger configuration. categories is an atomic bitmask of
// DebugCategory values; Config is safe to share across goroutines without
// an explicit lock.
type Config struct {
	Level      LogLevel
	Format     OutputFormat
	OutputFile string
	categories atomic.Uint32
}

// NewConfig creates a new logger configuration with defaults.
func NewConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
	}
}

// EnableCategory enables one debug category, or every category when passed
// debugAllMask via EnableAllCategories.
func (c *Config) EnableCategory(category DebugCategory) {
	for {
		old := c.categories.Load()
		if c.categories.CompareAndSwap(old, old|uint32(category)) {
			return
		}
	}
}

// EnableAllCategories turns on every gated debug category at once.
func (c *Config) EnableAllCategories() {
	c.EnableCategory(debugAllMask)
}

// IsCategoryEnabled reports whether category is currently gated on.
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	return c.categories.Load()&uint32(category) != 0
}

// ParseLevel converts a string to LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat.
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
}

// ToSlogLevel converts LogLevel to slog.Level.
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps slog.Logger with category-based debugging.
type Logger struct {
	*slog.Logger
	config *Config
	file   *os.File
}

// New creates a new Logger instance with the given configuration.
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.Level.ToSlogLevel()}
	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return &Logger{Logger: slog.New(handler), config: cfg, file: file}, nil
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// debugCategory logs msg at debug level, tagged with category's name, if
// that category is gated on. The four exported DebugXxx methods below are
// thin, fixed-category callers of this.
func (l *Logger) debugCategory(category DebugCategory, msg string, args ...any) {
	if !l.config.IsCategoryEnabled(category) {
		return
	}
	l.Debug(msg, append([]any{"category", categoryNames[category]}, args...)...)
}

// DebugDelivery logs a per-frame dispatch decision if delivery debugging is
// enabled.
func (l *Logger) DebugDelivery(msg string, args ...any) { l.debugCategory(DebugDelivery, msg, args...) }

// DebugMaster logs a master-protocol transition if master debugging is
// enabled.
func (l *Logger) DebugMaster(msg string, args ...any) { l.debugCategory(DebugMaster, msg, args...) }

// DebugPool logs a buffer pool renegotiation if pool debugging is enabled.
func (l *Logger) DebugPool(msg string, args ...any) { l.debugCategory(DebugPool, msg, args...) }

// DebugFence logs a timeline issuance/signal event if fence debugging is
// enabled.
func (l *Logger) DebugFence(msg string, args ...any) { l.debugCategory(DebugFence, msg, args...) }

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config, file: l.file}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// SetDefault sets the global default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
	slog.SetDefault(logger.Logger)
}

// Default returns the default logger, creating one if necessary.
func Default() *Logger {
	once.Do(func() {
		if defaultLogger != nil {
			return // already set by SetDefault
		}
		cfg := NewConfig()
		logger, err := New(cfg)
		if err != nil {
			logger = &Logger{Logger: slog.Default(), config: cfg}
		}
		defaultLogger = logger
	})
	return defaultLogger
}
