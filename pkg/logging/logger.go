// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

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
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: true for a CLI).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: os.Stderr,
	}
}

// ConfigFromDebug returns the default configuration, switched to debug level
// when debug is true.
func ConfigFromDebug(debug, pretty bool) Config {
	cfg := DefaultConfig()
	cfg.Pretty = pretty
	if debug {
		cfg.Level = LevelDebug
	}
	return cfg
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - First event of each club response
//   - Per-event filter decisions
//   - Cache hit/miss for the club directory
//
// Info: Normal operation events
//   - Authentication, club counts, batch progress
//   - Files written, server startup
//   - Retry attempts for a club
//
// Warn: Warning conditions that don't prevent operation
//   - Club directory cache errors (fallback to direct request)
//   - Rate limit usage near the 15-minute budget
//
// Error: Error conditions requiring attention
//   - Clubs whose events could not be fetched after all attempts
//   - Authentication failures
//   - Persistence failures
//
// Context Fields:
//   - component: emitting package
//   - club_id / club: club identifier and display name
//   - attempt: attempt number within the retry loop
//   - status: HTTP status code
//   - batch: batch index within a collection run
//   - path: file path for persistence operations
