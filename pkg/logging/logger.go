// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelOff disables logging.
	LevelOff LogLevel = "off"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	// The stdio MCP transport owns stdout, so logs never go there by default.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger tagged with the given component name.
// A nil base derives it from the global logger.
func NewLogger(component string, base *zerolog.Logger) zerolog.Logger {
	if base == nil {
		base = &log.Logger
	}
	return base.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-attempt flow
//   - Dispatch and attempt records (method, endpoint, attempt)
//   - Cache hit/miss and conditional revalidation
//   - Pagination progress (page, offset, cursor)
//
// Info: state transitions and completed work
//   - Session transitions (state)
//   - Completed multi-page fetches
//   - Server startup/shutdown
//
// Warn: degraded but recovering
//   - Retries with backoff (error_kind, backoff)
//   - Challenges detected, upstream cooldowns
//   - API key demoted, cache errors
//
// Error: terminal failures
//   - Exhausted retries, failed challenge solves
//   - Startup authentication failures
//
// Context Fields:
//   - component: owning component
//   - request_id: per-dispatch UUID, also sent as X-Request-Id
//   - endpoint, method, status: request identity and outcome
//   - attempt, error_kind, backoff: retry loop state
//   - page, offset, cursor: pagination position
//   - state: session state
