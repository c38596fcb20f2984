// Package logging provides structured logging for roomline using zerolog.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

type ctxKey string

const loggerKey ctxKey = "logger"

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json, console).
	Format string

	// Output is where logs are written. Ignored when File is set.
	Output io.Writer

	// File, when set, receives the log instead of Output. The terminal UI owns
	// the screen, so tail sessions log here.
	File string

	EnableCaller bool
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

// Init initializes the global logger. The returned closer releases the log file,
// if one was opened.
func Init(cfg Config) (io.Closer, error) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(cfg.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return closer, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, fmt.Errorf("open log file: %w", err)
		}
		output = f
		closer = f
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
			NoColor:    cfg.File != "",
		}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	Logger = ctx.Logger()
	return closer, nil
}

// Discard silences the global logger. Used by tests and the version command.
func Discard() {
	Logger = zerolog.Nop()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger from the context, or the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger
}

// Component creates a logger with a component field.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithRoom creates a logger scoped to one chat room.
func WithRoom(roomID int64) zerolog.Logger {
	return Logger.With().Str("component", "timeline").Int64("room_id", roomID).Logger()
}

// WithClient creates a logger for one push connection on the room server.
func WithClient(clientID string, roomID int64) zerolog.Logger {
	return Logger.With().
		Str("component", "hub").
		Str("client_id", clientID).
		Int64("room_id", roomID).
		Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
