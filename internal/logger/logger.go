// Package logger provides structured logging for the store engine.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with engine-specific operation vocabulary.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "redb").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message.
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// EngineLogger returns a logger scoped to one storage-engine operation
// (commit, fsync, lookup, range-scan, compact).
func (l *Logger) EngineLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "engine").
			Str("operation", operation).
			Logger(),
	}
}

// LogOpen logs a successful Database.Open.
func (l *Logger) LogOpen(path string, pageSize int) {
	l.zlog.Info().
		Str("event", "open").
		Str("path", path).
		Int("page_size", pageSize).
		Msg("store opened")
}

// LogCommit logs a write transaction's commit, including the new root.
func (l *Logger) LogCommit(tableID uint64, newRoot uint64, duration time.Duration) {
	l.zlog.Debug().
		Str("event", "commit").
		Uint64("table_id", tableID).
		Uint64("root", newRoot).
		Dur("duration_ms", duration).
		Msg("write transaction committed")
}

// Global logger instance.
var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance, initializing it
// with defaults on first use.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
