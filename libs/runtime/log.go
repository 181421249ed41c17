package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Platform tags every log line so aggregated logs can be filtered per product.
const Platform = "masterparty"

// NewLogger builds the service logger from LOG_LEVEL, LOG_FORMAT and APP_ENV.
func NewLogger(service string) *slog.Logger {
	return newLogger(os.Stdout, service, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Getenv("APP_ENV"))
}

func newLogger(out io.Writer, service, level, format, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	logger := slog.New(h).With("platform", Platform, "service", service)
	if env = strings.TrimSpace(env); env != "" {
		logger = logger.With("env", env)
	}
	return logger
}

// ParseLevel maps debug, warn and error; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
