package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/wigtn/wigtn-spot-finder/internal/provider"
)

// fakeEmbedder returns a fixed vector, or an error when broken.
type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.EmbeddingResponse{Vector: f.vector}, nil
}

// fakeStore serves canned results, or an error when broken.
type fakeStore struct {
	results []Result
	err     error
}

func (f *fakeStore) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	return f.err
}

func (f *fakeStore) Search(ctx context.Context, threadID string, vector []float32, limit int) ([]Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeStore) EnsureCollection(ctx context.Context) error { return f.err }

func canned(id string, score float32, turn int) Result {
	return Result{
		ID:    id,
		Score: score,
		Payload: map[string]interface{}{
			PayloadContent:   "content " + id,
			PayloadKind:      KindTurn,
			PayloadTurnIndex: turn,
		},
	}
}

func TestRetrieveFiltersAndRanks(t *testing.T) {
	store := &fakeStore{results: []Result{
		canned("low", 0.5, 9),
		canned("mid", 0.8, 2),
		canned("high", 0.95, 1),
		canned("edge", 0.7, 4),
	}}
	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1}}, "emb", 3, 0.7)

	records, err := r.Retrieve(context.Background(), "t1", "query")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	wantOrder := []string{"high", "mid", "edge"}
	for i, want := range wantOrder {
		if records[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, records[i].ID, want)
		}
	}
	for _, rec := range records {
		if rec.Score < 0.7 {
			t.Errorf("record %s below threshold: %f", rec.ID, rec.Score)
		}
	}
}

func TestRetrieveBreaksTiesByRecency(t *testing.T) {
	store := &fakeStore{results: []Result{
		canned("older", 0.9, 2),
		canned("newer", 0.9, 7),
	}}
	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1}}, "emb", 1, 0.7)

	records, err := r.Retrieve(context.Background(), "t1", "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "newer" {
		t.Errorf("tie should prefer higher turn index, got %+v", records)
	}
}

func TestRetrieveTopKLimit(t *testing.T) {
	store := &fakeStore{results: []Result{
		canned("a", 0.9, 1), canned("b", 0.85, 2), canned("c", 0.8, 3),
		canned("d", 0.75, 4), canned("e", 0.72, 5),
	}}
	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1}}, "emb", 3, 0.7)

	records, err := r.Retrieve(context.Background(), "t1", "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want topK=3", len(records))
	}
}

func TestRetrieveEmptyWhenNothingRelevant(t *testing.T) {
	store := &fakeStore{results: []Result{canned("far", 0.2, 1)}}
	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1}}, "emb", 3, 0.7)

	records, err := r.Retrieve(context.Background(), "t1", "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %+v", records)
	}
}

func TestRetrieveDegradesOnStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1}}, "emb", 3, 0.7)

	records, err := r.Retrieve(context.Background(), "t1", "query")
	if !IsMemoryUnavailable(err) {
		t.Fatalf("expected MemoryUnavailableError, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("degraded retrieval must return no records, got %+v", records)
	}
}

func TestRetrieveDegradesOnEmbedderFailure(t *testing.T) {
	store := &fakeStore{results: []Result{canned("a", 0.9, 1)}}
	r := NewRetriever(store, &fakeEmbedder{err: errors.New("timeout")}, "emb", 3, 0.7)

	_, err := r.Retrieve(context.Background(), "t1", "query")
	if !IsMemoryUnavailable(err) {
		t.Fatalf("expected MemoryUnavailableError, got %v", err)
	}
}

func TestRetrieveNoEmbedderIsNoop(t *testing.T) {
	r := NewRetriever(&fakeStore{}, nil, "emb", 3, 0.7)
	records, err := r.Retrieve(context.Background(), "t1", "query")
	if err != nil || records != nil {
		t.Errorf("expected nil, nil; got %v, %v", records, err)
	}
}

func TestServiceRememberTurn(t *testing.T) {
	db := setupVecStore(t, 2)
	svc := NewService(db, &fakeEmbedder{vector: []float32{1, 0}}, "emb")

	if err := svc.RememberTurn(context.Background(), "t1", 0, "hello", "hi there"); err != nil {
		t.Fatalf("RememberTurn failed: %v", err)
	}
	results, err := db.Search(context.Background(), "t1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d records, want 1", len(results))
	}
	if got := results[0].Payload[PayloadKind]; got != KindTurn {
		t.Errorf("kind = %v, want %s", got, KindTurn)
	}
}

func TestServiceDisabledWithoutEmbedder(t *testing.T) {
	svc := NewService(&fakeStore{err: errors.New("should not be called")}, nil, "emb")
	if svc.Enabled() {
		t.Error("service without embedder should be disabled")
	}
	if err := svc.RememberTurn(context.Background(), "t1", 0, "a", "b"); err != nil {
		t.Errorf("disabled service should no-op, got %v", err)
	}
}
