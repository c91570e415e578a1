package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/memory"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

// fixedEmbedder returns the same vector for every input.
type fixedEmbedder struct {
	err error
}

func (f *fixedEmbedder) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.EmbeddingResponse{Vector: []float32{0.1, 0.2, 0.3}}, nil
}

// cannedVecStore serves a fixed result set and counts searches.
type cannedVecStore struct {
	results  []memory.Result
	err      error
	searches int
}

func (s *cannedVecStore) EnsureCollection(ctx context.Context) error {
	return nil
}

func (s *cannedVecStore) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	return nil
}

func (s *cannedVecStore) Search(ctx context.Context, threadID string, vector []float32, limit int) ([]memory.Result, error) {
	s.searches++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func retrievalFixture(store memory.VectorStore, emit EmitFunc) (*RetrievalStage, *TurnContext) {
	retriever := memory.NewRetriever(store, &fixedEmbedder{}, "solar-embedding-1-large", 3, 0.7)
	stage := &RetrievalStage{Retriever: retriever, WarmupTurns: 3, Emit: emit}
	tc := &TurnContext{
		Thread:    &thread.Thread{ThreadID: "t1", TurnCount: 5},
		Language:  "en",
		Input:     "where was that palace you mentioned?",
		NextStage: thread.StagePlanning,
	}
	return stage, tc
}

func TestRetrievalFeedsPromptAssembly(t *testing.T) {
	const remembered = "User asked about Gyeongbokgung Palace opening hours, assistant said 9am"
	store := &cannedVecStore{results: []memory.Result{
		{ID: "m1", Score: 0.91, Payload: map[string]interface{}{
			memory.PayloadContent:   remembered,
			memory.PayloadKind:      memory.KindTurn,
			memory.PayloadTurnIndex: 2,
		}},
	}}
	var emitted []events.AgentEvent
	stage, tc := retrievalFixture(store, func(e events.AgentEvent) { emitted = append(emitted, e) })

	if err := stage.Run(context.Background(), tc); err != nil {
		t.Fatal(err)
	}
	if len(tc.Records) != 1 || tc.Records[0].Content != remembered {
		t.Fatalf("Records = %+v", tc.Records)
	}
	if len(emitted) != 1 || emitted[0].Kind != events.KindMemoryRetrieved {
		t.Fatalf("emitted = %+v", emitted)
	}

	tc.LatestSummary = &thread.Summary{ThreadID: "t1", Text: "The user is planning two days in Seoul.", Level: 1}
	prompt := &PromptStage{}
	if err := prompt.Run(context.Background(), tc); err != nil {
		t.Fatal(err)
	}

	system := tc.Prompt[0]
	if system.Role != "system" {
		t.Fatalf("first message role = %s", system.Role)
	}
	if !strings.Contains(system.Content, "RELEVANT CONTEXT FROM PREVIOUS CONVERSATIONS:") {
		t.Error("memory section missing from system prompt")
	}
	if !strings.Contains(system.Content, remembered) {
		t.Error("retrieved snippet missing from system prompt")
	}
	if !strings.Contains(system.Content, "The user is planning two days in Seoul.") {
		t.Error("summary missing from system prompt")
	}
	last := tc.Prompt[len(tc.Prompt)-1]
	if last.Role != "user" || last.Content != tc.Input {
		t.Errorf("last message = %+v", last)
	}
}

func TestRetrievalDegradesWithoutFailingTurn(t *testing.T) {
	store := &cannedVecStore{err: errors.New("connection refused")}
	var emitted []events.AgentEvent
	stage, tc := retrievalFixture(store, func(e events.AgentEvent) { emitted = append(emitted, e) })

	if err := stage.Run(context.Background(), tc); err != nil {
		t.Fatalf("stage must not fail the turn: %v", err)
	}
	if len(tc.Records) != 0 {
		t.Errorf("Records = %+v, want empty", tc.Records)
	}
	if len(emitted) != 1 || emitted[0].Kind != events.KindMemoryDegraded {
		t.Fatalf("emitted = %+v, want one memory_degraded", emitted)
	}
	if emitted[0].ErrorCode != "MEMORY_UNAVAILABLE" {
		t.Errorf("ErrorCode = %s", emitted[0].ErrorCode)
	}

	// Prompt assembly proceeds without the memory section.
	prompt := &PromptStage{}
	if err := prompt.Run(context.Background(), tc); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(tc.Prompt[0].Content, "RELEVANT CONTEXT FROM PREVIOUS CONVERSATIONS:") {
		t.Error("memory section present despite degraded retrieval")
	}
	last := tc.Prompt[len(tc.Prompt)-1]
	if last.Role != "user" || last.Content != tc.Input {
		t.Errorf("last message = %+v", last)
	}
}

func TestRetrievalSkipsDuringWarmup(t *testing.T) {
	store := &cannedVecStore{}
	var emitted []events.AgentEvent
	stage, tc := retrievalFixture(store, func(e events.AgentEvent) { emitted = append(emitted, e) })
	tc.Thread.TurnCount = 1

	if err := stage.Run(context.Background(), tc); err != nil {
		t.Fatal(err)
	}
	if store.searches != 0 {
		t.Errorf("searches = %d, want 0", store.searches)
	}
	if len(emitted) != 0 {
		t.Errorf("emitted = %+v, want none", emitted)
	}
}
