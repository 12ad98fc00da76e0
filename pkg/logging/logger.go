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
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
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
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

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
//   - Cache operations (hit/miss, key, TTL)
//   - Batch composition and release triggers
//   - Retry scheduling
//
// Info: Normal operation events
//   - Collector startup/shutdown
//   - Circuit breaker closing, limiter backoff decay
//   - Sink file rollover
//
// Warn: Warning conditions that don't prevent operation
//   - Upstream rate limit violations (backoff active)
//   - Retry attempts and batch failures
//   - Sink write errors (quotes still delivered)
//
// Error: Error conditions requiring attention
//   - Circuit breaker opening
//   - Retry exhaustion
//   - Configuration errors at startup
//
// Context Fields:
//   - component: emitting subsystem (dispatch, ratelimit, breaker, ...)
//   - key: quote key ("quote:EXCHANGE:SYMBOL")
//   - batch_id: batch identifier
//   - status: upstream HTTP status code
//   - duration: request duration
//   - kind: upstream error kind (rate_limited, network, upstream_4xx, upstream_5xx)
//   - backoff_factor: current limiter penalty
//   - tokens: current limiter token balance
