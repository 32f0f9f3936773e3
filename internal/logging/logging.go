// Package logging configures the gateway's single structured logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds a slog.Logger writing JSON records to w at the given level
// name ("debug", "info", "warn", "error"; unrecognized values fall back
// to "info").
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ForGate returns the set of attributes every gate-stage and audit log
// record carries: tool name, session id, and result.
func ForGate(tool, sessionID, result string) []any {
	return []any{
		slog.String("tool", tool),
		slog.String("session_id", sessionID),
		slog.String("result", result),
	}
}
