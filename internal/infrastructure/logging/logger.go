// Package logging provides structured logging infrastructure for the
// flowtone application. It wraps Go's standard log/slog package with
// context-aware logging and domain-specific log attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// SessionIDKey is the context key for session IDs.
	SessionIDKey contextKey = "session_id"
	// ConnectionIDKey is the context key for stream connection IDs.
	ConnectionIDKey contextKey = "connection_id"
	// RuleIDKey is the context key for routing rule IDs.
	RuleIDKey contextKey = "rule_id"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with additional functionality for flowtone.
type Logger struct {
	slogger *slog.Logger
	level   slog.Level
	mu      sync.RWMutex
}

// global is the package-level default logger.
var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if
// necessary.
func Default() *Logger {
	if global == nil {
		Init(DefaultConfig())
	}
	return global
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize time format
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
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

// SetLevel dynamically changes the log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLevel(level)
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+6)

	if v := ctx.Value(SessionIDKey); v != nil {
		enriched = append(enriched, "session_id", v)
	}
	if v := ctx.Value(ConnectionIDKey); v != nil {
		enriched = append(enriched, "connection_id", v)
	}
	if v := ctx.Value(RuleIDKey); v != nil {
		enriched = append(enriched, "rule_id", v)
	}

	enriched = append(enriched, args...)
	return enriched
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.slogger
}

// --- Context helpers ---

// WithSessionID adds a session ID to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// WithConnectionID adds a stream connection ID to the context.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// WithRuleID adds a routing rule ID to the context.
func WithRuleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RuleIDKey, id)
}

// SessionID extracts the session ID from context.
func SessionID(ctx context.Context) string {
	if v := ctx.Value(SessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- Domain-specific logging helpers ---

// LogSessionStart logs the start of a focus session.
func LogSessionStart(ctx context.Context, logger *Logger, sessionID string, durationSeconds int) {
	logger.InfoContext(ctx, "session started",
		"session_id", sessionID,
		"duration_s", durationSeconds,
	)
}

// LogSessionCompleted logs a session reaching its full duration.
func LogSessionCompleted(ctx context.Context, logger *Logger, sessionID string) {
	logger.InfoContext(ctx, "session completed",
		"session_id", sessionID,
	)
}

// LogSessionSuspended logs a focus-violation suspension.
func LogSessionSuspended(ctx context.Context, logger *Logger, sessionID, appName, host string) {
	logger.InfoContext(ctx, "session suspended on focus violation",
		"session_id", sessionID,
		"app", appName,
		"host", host,
	)
}

// LogSessionRefocused logs resumption after the user returns to an allowed
// context.
func LogSessionRefocused(ctx context.Context, logger *Logger, sessionID string) {
	logger.InfoContext(ctx, "session resumed after refocus",
		"session_id", sessionID,
	)
}

// LogStreamConnected logs a successful backend handshake.
func LogStreamConnected(ctx context.Context, logger *Logger, model string) {
	logger.InfoContext(ctx, "stream connected",
		"model", model,
	)
}

// LogStreamError logs a backend or transport error on the stream.
func LogStreamError(ctx context.Context, logger *Logger, err error) {
	logger.ErrorContext(ctx, "stream error",
		"error", err.Error(),
	)
}

// LogSendFailure logs a failed fire-and-forget command send.
func LogSendFailure(ctx context.Context, logger *Logger, command string, err error) {
	logger.WarnContext(ctx, "command send failed",
		"command", command,
		"error", err.Error(),
	)
}

// LogProfileSwitch logs a committed routing-rule switch.
func LogProfileSwitch(ctx context.Context, logger *Logger, ruleID, label string) {
	logger.InfoContext(ctx, "routing profile switched",
		"rule_id", ruleID,
		"label", label,
	)
}

// LogParameterTick logs a thresholded parameter emission at debug level.
func LogParameterTick(ctx context.Context, logger *Logger, bpm int, bpmChanged bool) {
	logger.DebugContext(ctx, "parameters emitted",
		"bpm", bpm,
		"bpm_changed", bpmChanged,
	)
}
