// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger. The level string is parsed
// case-insensitively; anything unrecognized falls back to info. Set
// LOG_FORMAT=json to emit JSON records instead of text, which is what
// the deployed services do so the collector can index fields.
func Setup(logLevel string) {
	level := slog.LevelInfo
	if logLevel != "" {
		_ = level.UnmarshalText([]byte(strings.ToLower(logLevel)))
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithModule returns the default logger tagged with the subsystem name,
// e.g. "engine" or "rule-matcher".
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
