package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// QdrantStore implements VectorStore against a Qdrant HTTP endpoint.
type QdrantStore struct {
	baseURL    string
	collection string
	dimension  int
	client     *http.Client
}

// NewQdrantStore creates a store for the given Qdrant URL and collection.
func NewQdrantStore(url, collection string, dim int) *QdrantStore {
	return &QdrantStore{
		baseURL:    url,
		collection: collection,
		dimension:  dim,
		client:     &http.Client{},
	}
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	resp, err := s.client.Get(s.baseURL + "/collections/" + s.collection)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, "PUT", s.baseURL+"/collections/"+s.collection, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err = s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to create collection: %s", string(b))
	}
	return nil
}

// Upsert stores a point. IDs must be UUIDs; the service generates them.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":      id,
				"vector":  vector,
				"payload": payload,
			},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, _ := http.NewRequestWithContext(ctx, "PUT", fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, s.collection), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant upsert failed: %s", string(b))
	}
	return nil
}

// Search runs a filtered similarity search restricted to one thread.
func (s *QdrantStore) Search(ctx context.Context, threadID string, vector []float32, limit int) ([]Result, error) {
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": PayloadThreadID, "match": map[string]interface{}{"value": threadID}},
			},
		},
	}

	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("qdrant search failed: %d", resp.StatusCode)
	}

	var response struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	results := make([]Result, len(response.Result))
	for i, r := range response.Result {
		results[i] = Result{
			ID:      r.ID,
			Score:   r.Score,
			Payload: r.Payload,
		}
	}
	return results, nil
}
