// Package summarizer condenses old conversation turns into summaries using
// a strict fallback chain: generative, partial generative, extractive, and
// finally a plain truncation marker that cannot fail.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
	"github.com/wigtn/wigtn-spot-finder/internal/tokens"
)

const summarizationPrompt = `Summarize the following conversation concisely, preserving key information:
- User's travel plans and preferences
- Important places, dates, and times mentioned
- Any specific requests or constraints
- Decisions made during the conversation

Keep the summary under 500 words. Focus on actionable information.

Conversation to summarize:
%s

Summary:`

// extractiveKeywords mark sentences worth keeping when no model is
// reachable.
var extractiveKeywords = []string{
	"want", "need", "prefer", "like", "visit", "go", "travel",
	"hotel", "restaurant", "food", "museum", "palace", "temple",
	"subway", "bus", "taxi", "walk",
	"morning", "afternoon", "evening", "night",
	"budget", "cheap", "expensive", "luxury",
	"day", "days", "week", "hour", "hours",
	"seoul", "busan", "jeju", "incheon", "gyeongju",
}

// minViableSummaryChars rejects degenerate model outputs.
const minViableSummaryChars = 50

// ExhaustedError means no strategy produced a summary. With a non-empty
// input range this cannot happen; it guards the empty-range case.
type ExhaustedError struct {
	ThreadID string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no summarization strategy produced output for thread %s", e.ThreadID)
}

// IsExhausted reports whether err wraps an ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// EmitFunc receives fallback events. May be nil.
type EmitFunc func(events.AgentEvent)

// Summarizer runs the fallback chain.
type Summarizer struct {
	provider provider.LLMProvider
	model    string
	counter  *tokens.Counter
	timeout  time.Duration
	emit     EmitFunc
}

// New creates a summarizer. The model is typically a cheaper one than the
// main chat model. emit may be nil.
func New(p provider.LLMProvider, model string, counter *tokens.Counter, timeout time.Duration, emit EmitFunc) *Summarizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if emit == nil {
		emit = func(events.AgentEvent) {}
	}
	return &Summarizer{provider: p, model: model, counter: counter, timeout: timeout, emit: emit}
}

// Summarize condenses msgs, which must be the messages of turns
// [startTurn, endTurn) of the thread. The returned summary always covers
// exactly that range; only an empty range fails.
func (s *Summarizer) Summarize(ctx context.Context, threadID string, msgs []thread.Message, startTurn, endTurn int) (thread.Summary, error) {
	if len(msgs) == 0 || endTurn <= startTurn {
		return thread.Summary{}, &ExhaustedError{ThreadID: threadID}
	}

	text, level := s.run(ctx, threadID, msgs)
	if text == "" {
		return thread.Summary{}, &ExhaustedError{ThreadID: threadID}
	}

	sum := thread.Summary{
		ThreadID:  threadID,
		StartTurn: startTurn,
		EndTurn:   endTurn,
		Text:      text,
		Level:     level,
	}
	if s.counter != nil {
		sum.TokenCount = s.counter.Count(text)
	}
	return sum, nil
}

// run walks the strategy chain in order and reports each transition.
func (s *Summarizer) run(ctx context.Context, threadID string, msgs []thread.Message) (string, int) {
	// Level 1: full generative summarization.
	text, err := s.generative(ctx, msgs)
	if err == nil && text != "" {
		return text, 1
	}
	s.fallback(threadID, 1, err)

	// Level 2: generative over the recent half of the range.
	half := msgs[len(msgs)/2:]
	text, err = s.generative(ctx, half)
	if err == nil && text != "" {
		return "[Partial summary - earlier context omitted]\n" + text, 2
	}
	s.fallback(threadID, 2, err)

	// Level 3: extractive, no model involved.
	if text = extractive(msgs); text != "" {
		return text, 3
	}
	s.fallback(threadID, 3, errors.New("no extractable content"))

	// Level 4: truncation marker. Never fails for a non-empty range. The
	// final event records that quality degraded all the way down.
	s.fallback(threadID, 4, errors.New("all strategies exhausted, keeping truncation marker"))
	return truncation(msgs), 4
}

func (s *Summarizer) fallback(threadID string, failedLevel int, err error) {
	reason := "empty summary"
	if err != nil {
		reason = err.Error()
	}
	s.emit(events.New(events.KindSummarizationFallback, threadID).
		WithPayload("failed_level", failedLevel).
		WithPayload("reason", reason))
}

func (s *Summarizer) generative(ctx context.Context, msgs []thread.Message) (string, error) {
	if s.provider == nil {
		return "", errors.New("no summarization provider")
	}
	prompt := fmt.Sprintf(summarizationPrompt, formatConversation(msgs))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.Chat(callCtx, &provider.ChatRequest{
		Messages: []provider.Message{{Role: "user", Content: prompt}},
		Model:    s.model,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if len(text) < minViableSummaryChars {
		return "", fmt.Errorf("summary too short (%d chars)", len(text))
	}
	return text, nil
}

// extractive keeps user messages and keyword-dense lines, most recent last.
func extractive(msgs []thread.Message) string {
	var important []string
	for _, m := range msgs {
		lower := strings.ToLower(m.Content)
		hits := 0
		for _, kw := range extractiveKeywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits >= 2 || m.Role == thread.RoleUser {
			content := m.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			important = append(important, fmt.Sprintf("- %s: %s", roleLabel(m.Role), content))
		}
	}
	if len(important) == 0 {
		return ""
	}
	if len(important) > 10 {
		important = important[len(important)-10:]
	}
	return "Key points from previous conversation:\n" + strings.Join(important, "\n")
}

// truncation keeps the edges of the range and marks the omitted middle.
func truncation(msgs []thread.Message) string {
	clip := func(m thread.Message) string {
		content := m.Content
		if len(content) > 100 {
			content = content[:100]
		}
		return fmt.Sprintf("%s: %s...", roleLabel(m.Role), content)
	}

	if len(msgs) <= 4 {
		parts := make([]string, 0, len(msgs))
		for _, m := range msgs {
			parts = append(parts, clip(m))
		}
		return strings.Join(parts, "\n")
	}

	var parts []string
	for _, m := range msgs[:2] {
		parts = append(parts, clip(m))
	}
	parts = append(parts, fmt.Sprintf("[... %d messages omitted ...]", len(msgs)-4))
	for _, m := range msgs[len(msgs)-2:] {
		parts = append(parts, clip(m))
	}
	return strings.Join(parts, "\n")
}

func formatConversation(msgs []thread.Message) string {
	var lines []string
	for _, m := range msgs {
		if m.Role == thread.RoleSystem {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(m.Role), m.Content))
	}
	return strings.Join(lines, "\n\n")
}

func roleLabel(role string) string {
	if role == thread.RoleUser {
		return "User"
	}
	return "Assistant"
}
