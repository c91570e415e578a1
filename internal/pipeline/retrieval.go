package pipeline

import (
	"context"
	"log/slog"

	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/memory"
)

// EmitFunc publishes a pipeline event. A nil EmitFunc is a no-op.
type EmitFunc func(events.AgentEvent)

// RetrievalStage fetches long-term memories relevant to the current input.
// It never fails the turn: when the memory layer is unavailable the stage
// degrades to an empty result set and reports the degradation.
type RetrievalStage struct {
	Retriever   *memory.Retriever
	WarmupTurns int
	Emit        EmitFunc
}

func (s *RetrievalStage) Name() string { return "retrieval" }

func (s *RetrievalStage) Run(ctx context.Context, tc *TurnContext) error {
	tc.Records = nil
	if s.Retriever == nil {
		return nil
	}
	// Early turns have nothing worth recalling yet.
	if tc.Thread.TurnCount < s.WarmupTurns {
		return nil
	}

	records, err := s.Retriever.Retrieve(ctx, tc.Thread.ThreadID, tc.Input)
	if err != nil {
		slog.Warn("memory retrieval degraded", "thread_id", tc.Thread.ThreadID, "error", err)
		s.emit(events.New(events.KindMemoryDegraded, tc.Thread.ThreadID).
			WithError("MEMORY_UNAVAILABLE", err.Error()))
		return nil
	}
	tc.Records = records
	if len(records) > 0 {
		s.emit(events.New(events.KindMemoryRetrieved, tc.Thread.ThreadID).
			WithPayload("count", len(records)).
			WithPayload("top_score", records[0].Score))
	}
	return nil
}

func (s *RetrievalStage) emit(e events.AgentEvent) {
	if s.Emit != nil {
		s.Emit(e)
	}
}
