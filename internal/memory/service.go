package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wigtn/wigtn-spot-finder/internal/provider"
)

// Service writes memory records for completed turns and summaries. Without
// an embedder it degrades to a no-op so conversation flow never depends on
// the memory subsystem.
type Service struct {
	store    VectorStore
	embedder provider.Embedder
	model    string
}

// NewService creates the memory write path.
func NewService(store VectorStore, embedder provider.Embedder, model string) *Service {
	return &Service{store: store, embedder: embedder, model: model}
}

// Enabled reports whether records will actually be written.
func (s *Service) Enabled() bool {
	return s.store != nil && s.embedder != nil
}

// RememberTurn stores one completed exchange as a memory record.
func (s *Service) RememberTurn(ctx context.Context, threadID string, turnIndex int, userText, assistantText string) error {
	content := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)
	return s.remember(ctx, threadID, turnIndex, KindTurn, content)
}

// RememberSummary stores a summary as a memory record so condensed history
// stays searchable.
func (s *Service) RememberSummary(ctx context.Context, threadID string, endTurn int, text string) error {
	return s.remember(ctx, threadID, endTurn, KindSummary, text)
}

func (s *Service) remember(ctx context.Context, threadID string, turnIndex int, kind, content string) error {
	if !s.Enabled() {
		slog.Debug("memory disabled, skipping record", "thread_id", threadID, "kind", kind)
		return nil
	}
	emb, err := s.embedder.Embed(ctx, &provider.EmbeddingRequest{Input: content, Model: s.model})
	if err != nil {
		return &MemoryUnavailableError{Op: "embed " + kind, Err: err}
	}
	payload := map[string]interface{}{
		PayloadContent:   content,
		PayloadThreadID:  threadID,
		PayloadKind:      kind,
		PayloadTurnIndex: turnIndex,
	}
	if err := s.store.Upsert(ctx, uuid.NewString(), emb.Vector, payload); err != nil {
		return &MemoryUnavailableError{Op: "upsert " + kind, Err: err}
	}
	return nil
}
