// Package memory implements long-term conversation memory: vector stores,
// the retriever that queries them, and the service that writes records.
package memory

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a vector's length does not match the
// store's configured embedding dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// VectorStore is the storage behind long-term memory. Records are scoped to
// a thread; a search never returns another thread's records.
type VectorStore interface {
	// Upsert stores a text with its embedding and metadata.
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error

	// Search finds the most similar items within one thread.
	Search(ctx context.Context, threadID string, vector []float32, limit int) ([]Result, error)

	// EnsureCollection makes sure the storage exists.
	EnsureCollection(ctx context.Context) error
}

// Result is one search hit.
type Result struct {
	ID      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// Payload keys used by the service and retriever.
const (
	PayloadContent   = "content"
	PayloadThreadID  = "thread_id"
	PayloadKind      = "kind"
	PayloadTurnIndex = "turn_index"
)

// Record kinds.
const (
	KindTurn    = "turn"
	KindSummary = "summary"
)

// MemoryUnavailableError means the memory subsystem could not serve a
// request. Reads degrade to empty results; writes surface it to the caller.
type MemoryUnavailableError struct {
	Op  string
	Err error
}

func (e *MemoryUnavailableError) Error() string {
	return fmt.Sprintf("memory unavailable during %s: %v", e.Op, e.Err)
}

func (e *MemoryUnavailableError) Unwrap() error { return e.Err }

// IsMemoryUnavailable reports whether err wraps a MemoryUnavailableError.
func IsMemoryUnavailable(err error) bool {
	var mu *MemoryUnavailableError
	return errors.As(err, &mu)
}
