// Package logging builds the service's JSON slog logger and small helpers around it.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// NewStructuredLogger returns a JSON logger writing to w at level.
func NewStructuredLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogError logs err under message with the given attributes.
func LogError(logger *slog.Logger, message string, err error, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+1)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Error(message, args...)
}

// LogOperation logs a completed operation at info level.
// A zero "duration" attribute is dropped.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == "duration" && a.Value.Kind() == slog.KindDuration && a.Value.Duration() == 0 {
			continue
		}
		args = append(args, a)
	}
	logger.Info(operation, args...)
}

// SafeClose closes c and logs a failure instead of returning it.
func SafeClose(c io.Closer, logger *slog.Logger, operation string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("operation", operation))
	}
}
