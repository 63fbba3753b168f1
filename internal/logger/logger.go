// Package logger is the single logging entry point for swclock: a
// zerolog-backed structured logger for normal operation, and Info/Error
// printf-style helpers over that same logger, with Info gated by Quiet.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide structured logger. Init replaces it; callers
// that run before Init see a sane stderr-JSON default.
var Log zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Quiet, when true, suppresses Info calls; Error always logs.
var Quiet bool

// Config selects the structured logger's level and format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Init installs the process-wide structured logger per cfg.
func Init(cfg Config) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Str("component", "swclock").Logger()
		return
	}
	Log = zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("component", "swclock").Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Info logs a printf-formatted message at info level through Log, unless
// Quiet is true.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	Log.Info().Msgf(format, args...)
}

// Error logs a printf-formatted message at error level through Log,
// regardless of Quiet.
func Error(format string, args ...interface{}) {
	Log.Error().Msgf(format, args...)
}
