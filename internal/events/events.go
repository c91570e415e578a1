// Package events emits structured agent events to external observers.
// Emission is best-effort and never blocks or fails the conversation flow.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened.
type Kind string

const (
	KindRequestStarted          Kind = "request_started"
	KindRequestCompleted        Kind = "request_completed"
	KindErrorOccurred           Kind = "error_occurred"
	KindSummarizationTriggered  Kind = "summarization_triggered"
	KindSummarizationCompleted  Kind = "summarization_completed"
	KindSummarizationFallback   Kind = "summarization_fallback"
	KindContextTrimmed          Kind = "context_trimmed"
	KindMemoryRetrieved         Kind = "memory_retrieved"
	KindMemoryStored            Kind = "memory_stored"
	KindMemoryDegraded          Kind = "memory_degraded"
	KindEntityExtracted         Kind = "entity_extracted"
	KindConflictRejected        Kind = "conflict_rejected"
	KindPromptInjectionDetected Kind = "prompt_injection_detected"
)

// AgentEvent is one observation of the pipeline.
type AgentEvent struct {
	EventID      string         `json:"event_id"`
	Kind         Kind           `json:"kind"`
	ThreadID     string         `json:"thread_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	LatencyMS    int64          `json:"latency_ms,omitempty"`
	TokenCount   int            `json:"token_count,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// New builds an event with a fresh ID and timestamp.
func New(kind Kind, threadID string) AgentEvent {
	return AgentEvent{
		EventID:   uuid.New().String(),
		Kind:      kind,
		ThreadID:  threadID,
		Timestamp: time.Now().UTC(),
	}
}

// WithError attaches an error code and message.
func (e AgentEvent) WithError(code, message string) AgentEvent {
	e.ErrorCode = code
	e.ErrorMessage = message
	return e
}

// WithPayload attaches one payload key.
func (e AgentEvent) WithPayload(key string, value any) AgentEvent {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	e.Payload[key] = value
	return e
}
