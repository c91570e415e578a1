package memory

import (
	"context"
	"sort"

	"github.com/wigtn/wigtn-spot-finder/internal/provider"
)

// Record is a retrieved memory ready for prompt assembly.
type Record struct {
	ID        string  `json:"id"`
	ThreadID  string  `json:"thread_id"`
	Content   string  `json:"content"`
	Kind      string  `json:"kind"`
	TurnIndex int     `json:"turn_index"`
	Score     float32 `json:"score"`
}

// Retriever embeds a query and searches the vector store for relevant
// records in the same thread.
type Retriever struct {
	store     VectorStore
	embedder  provider.Embedder
	model     string
	topK      int
	threshold float32
}

// NewRetriever builds a retriever at the given operating point.
func NewRetriever(store VectorStore, embedder provider.Embedder, model string, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{
		store:     store,
		embedder:  embedder,
		model:     model,
		topK:      topK,
		threshold: float32(threshold),
	}
}

// Retrieve returns up to topK records with similarity >= threshold, ordered
// by similarity descending with ties broken by higher turn index (more
// recent wins). Store or embedder failures are reported as
// MemoryUnavailableError; the caller is expected to continue with an empty
// result set.
func (r *Retriever) Retrieve(ctx context.Context, threadID, query string) ([]Record, error) {
	if r.embedder == nil || r.store == nil {
		return nil, nil
	}
	emb, err := r.embedder.Embed(ctx, &provider.EmbeddingRequest{Input: query, Model: r.model})
	if err != nil {
		return nil, &MemoryUnavailableError{Op: "embed query", Err: err}
	}

	// Over-fetch so the threshold filter and tie-break still leave topK
	// candidates to choose from.
	results, err := r.store.Search(ctx, threadID, emb.Vector, r.topK*4)
	if err != nil {
		return nil, &MemoryUnavailableError{Op: "search", Err: err}
	}

	records := make([]Record, 0, len(results))
	for _, res := range results {
		if res.Score < r.threshold {
			continue
		}
		records = append(records, resultToRecord(threadID, res))
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].TurnIndex > records[j].TurnIndex
	})

	if len(records) > r.topK {
		records = records[:r.topK]
	}
	return records, nil
}

func resultToRecord(threadID string, res Result) Record {
	rec := Record{ID: res.ID, ThreadID: threadID, Score: res.Score}
	if v, ok := res.Payload[PayloadContent].(string); ok {
		rec.Content = v
	}
	if v, ok := res.Payload[PayloadKind].(string); ok {
		rec.Kind = v
	}
	switch v := res.Payload[PayloadTurnIndex].(type) {
	case int:
		rec.TurnIndex = v
	case int64:
		rec.TurnIndex = int(v)
	case float64:
		rec.TurnIndex = int(v)
	}
	return rec
}
