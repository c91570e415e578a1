// Package thread holds per-conversation state: turns, summaries, extracted
// entities and the persistence layer behind them.
package thread

import (
	"time"
)

// Thread is the durable state of one conversation.
type Thread struct {
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Language  string    `json:"language"`
	TurnCount int       `json:"turn_count"`
	Stage     Stage     `json:"stage"`
	// MemoryPointer is the first turn index not yet covered by a summary.
	// Summary ranges are half-open [start, end) and partition [0, pointer).
	MemoryPointer int       `json:"memory_pointer"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Role identifies who produced a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one utterance in a thread. Messages are append-only and keyed
// by (thread_id, turn_index, role).
type Message struct {
	ThreadID   string    `json:"thread_id"`
	TurnIndex  int       `json:"turn_index"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary condenses the turns in [StartTurn, EndTurn). Level records which
// strategy produced it (1 generative, 2 partial generative, 3 extractive,
// 4 truncation marker).
type Summary struct {
	ThreadID   string    `json:"thread_id"`
	StartTurn  int       `json:"start_turn"`
	EndTurn    int       `json:"end_turn"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Level      int       `json:"level"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entity is a structured fact extracted from an exchange.
type Entity struct {
	ThreadID   string    `json:"thread_id"`
	Kind       string    `json:"kind"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	TurnIndex  int       `json:"turn_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entity kinds.
const (
	EntityPlace  = "place"
	EntityDate   = "date"
	EntityBudget = "budget"
	EntityTime   = "time"
)
