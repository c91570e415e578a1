package events

import (
	"context"
	"log/slog"
)

// LogSink writes events to the structured log. Useful on its own in local
// runs and as a fallback when no broker is configured.
type LogSink struct{}

// Deliver logs the event.
func (LogSink) Deliver(ctx context.Context, event AgentEvent) error {
	attrs := []any{
		"event_id", event.EventID,
		"thread_id", event.ThreadID,
	}
	if event.LatencyMS > 0 {
		attrs = append(attrs, "latency_ms", event.LatencyMS)
	}
	if event.TokenCount > 0 {
		attrs = append(attrs, "token_count", event.TokenCount)
	}
	if event.ErrorCode != "" {
		attrs = append(attrs, "error_code", event.ErrorCode, "error_message", event.ErrorMessage)
		slog.Warn(string(event.Kind), attrs...)
		return nil
	}
	slog.Info(string(event.Kind), attrs...)
	return nil
}
