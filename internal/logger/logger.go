package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// contextKey is the key for logger in context.
type contextKey string

const loggerKey contextKey = "logger"

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, console
	Service     string
	Version     string
	Environment string
	Output      io.Writer // defaults to os.Stdout
}

// New creates a logger with service-wide fields attached. The level applies to
// the returned logger only; process-wide zerolog settings are left alone.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).Level(level).With().
		Timestamp().
		Str("service", cfg.Service).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Logger()
}

// WithContext adds logger to context for retrieval further down the call chain.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves logger from context or returns fallback.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return fallback
	}
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return fallback
}

// parseLevel converts string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// TruncateToken shortens a payment token for logs (first 8 + last 4 chars).
func TruncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// RedactEmail masks email for PII compliance (keep domain for analytics).
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[redacted]"
	}
	username := parts[0]
	if len(username) > 2 {
		username = username[:2] + "***"
	} else {
		username = "***"
	}
	return username + "@" + parts[1]
}
