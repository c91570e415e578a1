// Package provider implements LLM provider interfaces and clients.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// LLMProvider is the interface for LLM API clients.
type LLMProvider interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// ChatRequest contains the parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Embedder is an optional interface for providers that support embedding.
// Callers should use type assertion: if emb, ok := prov.(Embedder); ok { ... }
type Embedder interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// EmbeddingRequest contains parameters for an embedding request.
type EmbeddingRequest struct {
	Input string
	Model string
}

// EmbeddingResponse contains the embedding vector.
type EmbeddingResponse struct {
	Vector []float32
	Usage  Usage
}

// APIError is a non-2xx response from the provider API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether err is worth retrying: transport failures,
// rate limits and server-side errors. Client errors are not.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Network-level failures have no status code.
	return err != nil
}

// ModelUnavailableError means the model could not produce a response after
// all retry attempts.
type ModelUnavailableError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable after %d attempts: %v", e.Model, e.Attempts, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// IsModelUnavailable reports whether err wraps a ModelUnavailableError.
func IsModelUnavailable(err error) bool {
	var mu *ModelUnavailableError
	return errors.As(err, &mu)
}
