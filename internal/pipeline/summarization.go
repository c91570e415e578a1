package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/memory"
	"github.com/wigtn/wigtn-spot-finder/internal/summarizer"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

// SummarizationStage folds the oldest part of the tail into a summary when
// the trimmer asked for it. Failures here never fail the turn; at worst the
// thread carries its full tail for one more exchange.
type SummarizationStage struct {
	Store      *thread.Store
	Summarizer *summarizer.Summarizer
	Memory     *memory.Service
	Emit       EmitFunc
}

func (s *SummarizationStage) Name() string { return "summarization" }

func (s *SummarizationStage) Run(ctx context.Context, tc *TurnContext) error {
	t := tc.Thread
	if tc.SummarizeThrough <= t.MemoryPointer {
		return nil
	}

	start, end := t.MemoryPointer, tc.SummarizeThrough
	s.emit(events.New(events.KindSummarizationTriggered, t.ThreadID).
		WithPayload("start_turn", start).
		WithPayload("end_turn", end).
		WithPayload("tokens_used", tc.Budget.Used))

	var window []thread.Message
	for _, m := range tc.Tail {
		if m.TurnIndex >= start && m.TurnIndex < end {
			window = append(window, m)
		}
	}

	sum, err := s.Summarizer.Summarize(ctx, t.ThreadID, window, start, end)
	if err != nil {
		slog.Warn("summarization skipped", "thread_id", t.ThreadID, "error", err)
		tc.SummarizeThrough = 0
		return nil
	}

	if err := s.Store.InsertSummary(ctx, sum); err != nil {
		if errors.Is(err, thread.ErrSummaryGap) {
			slog.Warn("summary range no longer matches pointer", "thread_id", t.ThreadID)
		} else {
			slog.Error("summary insert failed", "thread_id", t.ThreadID, "error", err)
		}
		tc.SummarizeThrough = 0
		return nil
	}

	t.MemoryPointer = end
	tc.LatestSummary = &sum

	kept := tc.Tail[:0:0]
	for _, m := range tc.Tail {
		if m.TurnIndex >= end {
			kept = append(kept, m)
		}
	}
	removed := len(tc.Tail) - len(kept)
	tc.Tail = kept

	s.emit(events.New(events.KindSummarizationCompleted, t.ThreadID).
		WithPayload("level", sum.Level).
		WithPayload("start_turn", sum.StartTurn).
		WithPayload("end_turn", sum.EndTurn).
		WithPayload("token_count", sum.TokenCount))
	s.emit(events.New(events.KindContextTrimmed, t.ThreadID).
		WithPayload("dropped_messages", removed))

	if s.Memory != nil && s.Memory.Enabled() {
		if err := s.Memory.RememberSummary(ctx, t.ThreadID, sum.EndTurn, sum.Text); err != nil {
			s.emit(events.New(events.KindMemoryDegraded, t.ThreadID).
				WithError("MEMORY_UNAVAILABLE", err.Error()))
		}
	}
	return nil
}

func (s *SummarizationStage) emit(e events.AgentEvent) {
	if s.Emit != nil {
		s.Emit(e)
	}
}
