// Package pipeline orchestrates one conversation turn through a fixed
// sequence of stages: validation, metadata, retrieval, trimming,
// summarization, prompt assembly, model invocation, entity extraction and
// event emission.
package pipeline

import (
	"context"
	"time"

	"github.com/wigtn/wigtn-spot-finder/internal/memory"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
	"github.com/wigtn/wigtn-spot-finder/internal/tokens"
)

// TurnContext carries the state of one turn through the stages. Stages fill
// in their own fields and read what earlier stages produced.
type TurnContext struct {
	Thread   *thread.Thread
	UserID   string
	Language string

	// RawInput is the message as received; Input is the sanitized form all
	// later stages use.
	RawInput string
	Input    string

	Intent    string
	NextStage thread.Stage

	// Records are the retrieved long-term memories, empty on degradation.
	Records []memory.Record

	// Tail is the unsummarized message window that will accompany the
	// prompt. Trimming may shorten it; SummarizeThrough marks where the
	// pruned prefix ends (0 = nothing to summarize).
	Tail             []thread.Message
	SummarizeThrough int
	LatestSummary    *thread.Summary

	Budget tokens.Budget

	Prompt   []provider.Message
	Response *provider.ChatResponse

	Entities []thread.Entity

	StartedAt time.Time
}

// Stage is one step of the pipeline. Stages run in a fixed order; there is
// no dynamic registration.
type Stage interface {
	Name() string
	Run(ctx context.Context, tc *TurnContext) error
}
