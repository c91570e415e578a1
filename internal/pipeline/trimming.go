package pipeline

import (
	"context"

	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
	"github.com/wigtn/wigtn-spot-finder/internal/tokens"
)

// minTailMessages is the fallback floor when no keep-recent count is
// configured, so the model always sees the immediate exchange.
const minTailMessages = 4

// TrimmingStage loads the unsummarized message window, prices the whole
// context against the token budget and decides what, if anything, must be
// summarized away. Over the hard limit it drops oldest tail messages on the
// spot.
type TrimmingStage struct {
	Store      *thread.Store
	Counter    *tokens.Counter
	SoftLimit  int
	HardLimit  int
	KeepRecent int
	Emit       EmitFunc
}

func (s *TrimmingStage) Name() string { return "trimming" }

func (s *TrimmingStage) Run(ctx context.Context, tc *TurnContext) error {
	t := tc.Thread

	tail, err := s.Store.MessagesSince(ctx, t.ThreadID, t.MemoryPointer)
	if err != nil {
		return err
	}
	latest, err := s.Store.LatestSummary(ctx, t.ThreadID)
	if err != nil {
		return err
	}
	tc.Tail = tail
	tc.LatestSummary = latest

	tc.Budget = tokens.CheckBudget(s.used(tc), s.SoftLimit, s.HardLimit)

	// Crossing the soft limit schedules summarization of the oldest part of
	// the tail; the recent half of the keep window stays verbatim.
	if tc.Budget.NeedsSummarization {
		through := t.TurnCount - s.KeepRecent/2
		if through > t.MemoryPointer {
			tc.SummarizeThrough = through
		}
	}

	// Over the hard limit the turn cannot wait for summarization: shed the
	// oldest messages immediately. Shedding never cuts below the keep-recent
	// floor; whatever pressure remains is summarization's to relieve.
	if tc.Budget.OverHardLimit {
		floor := s.KeepRecent
		if floor <= 0 {
			floor = minTailMessages
		}
		dropped := 0
		for len(tc.Tail) > floor && tc.Budget.OverHardLimit {
			tc.Tail = tc.Tail[1:]
			dropped++
			tc.Budget = tokens.CheckBudget(s.used(tc), s.SoftLimit, s.HardLimit)
		}
		if dropped > 0 {
			s.emit(events.New(events.KindContextTrimmed, t.ThreadID).
				WithPayload("dropped_messages", dropped).
				WithPayload("tokens_after", tc.Budget.Used))
		}
	}
	return nil
}

// used prices everything that will reach the model: the system prompt, the
// latest summary, retrieved memories, the tail and the new input.
func (s *TrimmingStage) used(tc *TurnContext) int {
	total := s.Counter.CountMessage(systemPreamble(tc.NextStage, tc.Language))
	if tc.LatestSummary != nil {
		total += tc.LatestSummary.TokenCount
	}
	for _, rec := range tc.Records {
		total += s.Counter.Count(rec.Content)
	}
	for _, m := range tc.Tail {
		if m.TokenCount > 0 {
			total += m.TokenCount
		} else {
			total += s.Counter.CountMessage(m.Content)
		}
	}
	total += s.Counter.CountMessage(tc.Input)
	return total
}

func (s *TrimmingStage) emit(e events.AgentEvent) {
	if s.Emit != nil {
		s.Emit(e)
	}
}
