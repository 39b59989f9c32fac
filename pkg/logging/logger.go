// Package logging configures the zerolog logger shared by the Gemini
// client, its cache and the command line tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names attached to every log line as the "component" field.
const (
	ComponentClient = "gemini-client"
	ComponentCache  = "gemini-cache"
	ComponentProxy  = "gemini-proxy"
	ComponentCLI    = "gemini-mind"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"

	// LevelDisabled silences all output.
	LevelDisabled LogLevel = "disabled"
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

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from configuration. "warning" is
// accepted as an alias for warn.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "disabled", "off":
		return LevelDisabled, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level, falling back to info.
func parseLevel(level LogLevel) zerolog.Level {
	parsed, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch parsed {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelDisabled:
		return zerolog.Disabled
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
//   - Cache hits, misses and writes (fingerprint)
//   - Outgoing generateContent calls (model, fingerprint)
//   - Redis connection established
//
// Info: Normal operation events
//   - Proxy startup/shutdown
//   - Cache cleared by an operator
//
// Warn: Warning conditions that don't prevent operation
//   - Redis unreachable at startup (cache disabled)
//   - Redis command failures (treated as miss or failed write)
//   - API answered with a rate limit, service, not found or response error
//
// Error: Error conditions requiring attention
//   - Connection failures and timeouts
//   - Unclassified request failures
//
// Context Fields:
//   - component: gemini-client, gemini-cache, gemini-proxy, gemini-mind
//   - model: Model the call was routed to
//   - fingerprint: Cache fingerprint of the call
//   - error_kind: Error taxonomy kind (api, rate_limit, timeout, ...)
//   - status_code: HTTP status code
