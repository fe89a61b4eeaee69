// Package observability provides structured logging for the orchestrator.
package observability

import (
	"log/slog"
	"os"
	"strings"
)

// Common structured log field names.
const (
	FieldSessionID = "session_id"
	FieldToolID    = "tool_id"
	FieldActionID  = "action_id"
	FieldRecordID  = "record_id"
	FieldBatchID   = "batch_id"
	FieldProvider  = "provider"
	FieldPipeline  = "pipeline"
	FieldDuration  = "duration_ms"
	FieldErrorCode = "error_code"
)

// NewLogger builds the process logger. JSON output is used in production;
// text output is easier to read during development.
func NewLogger(level string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
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
