// Package config provides configuration types and loading for spotfinder.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Context, Memory, Events, Gateway.
type Config struct {
	Paths   PathsConfig   `json:"paths"`
	Model   ModelConfig   `json:"model"`
	Context ContextConfig `json:"context"`
	Memory  MemoryConfig  `json:"memory"`
	Events  EventsConfig  `json:"events"`
	Gateway GatewayConfig `json:"gateway"`
}

// ---------------------------------------------------------------------------
// Paths: filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	DBFile  string `json:"dbFile" envconfig:"DB_FILE"`
}

// ---------------------------------------------------------------------------
// Model: LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model settings for the main chat model and the
// cheaper summarization model.
type ModelConfig struct {
	Name               string        `json:"name" envconfig:"MODEL"`
	SummarizationModel string        `json:"summarizationModel" envconfig:"SUMMARIZATION_MODEL"`
	APIKey             string        `json:"apiKey" envconfig:"API_KEY"`
	APIBase            string        `json:"apiBase" envconfig:"API_BASE"`
	MaxTokens          int           `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature        float64       `json:"temperature" envconfig:"TEMPERATURE"`
	MaxRetries         int           `json:"maxRetries" envconfig:"MAX_RETRIES"`
	RetryBaseDelay     time.Duration `json:"retryBaseDelay" envconfig:"RETRY_BASE_DELAY"`
	DefaultLanguage    string        `json:"defaultLanguage" envconfig:"DEFAULT_LANGUAGE"`
}

// ---------------------------------------------------------------------------
// Context: token budgets and pipeline thresholds
// ---------------------------------------------------------------------------

// ContextConfig contains the context-engineering knobs: token thresholds,
// trimming floor, retrieval operating point, lease TTL and summarizer timeout.
type ContextConfig struct {
	SoftLimitTokens     int           `json:"softLimitTokens" envconfig:"SOFT_LIMIT_TOKENS"`
	HardLimitTokens     int           `json:"hardLimitTokens" envconfig:"HARD_LIMIT_TOKENS"`
	KeepRecentMessages  int           `json:"keepRecentMessages" envconfig:"KEEP_RECENT_MESSAGES"`
	MaxInputChars       int           `json:"maxInputChars" envconfig:"MAX_INPUT_CHARS"`
	RetrievalTopK       int           `json:"retrievalTopK" envconfig:"RETRIEVAL_TOP_K"`
	SimilarityThreshold float64       `json:"similarityThreshold" envconfig:"SIMILARITY_THRESHOLD"`
	WarmupTurns         int           `json:"warmupTurns" envconfig:"WARMUP_TURNS"`
	LeaseTTL            time.Duration `json:"leaseTtl" envconfig:"LEASE_TTL"`
	SummarizerTimeout   time.Duration `json:"summarizerTimeout" envconfig:"SUMMARIZER_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Memory: vector store backends
// ---------------------------------------------------------------------------

// MemoryConfig configures the long-term memory store.
// Backend is "sqlite" (default, in-process cosine scan) or "qdrant".
type MemoryConfig struct {
	Backend          string `json:"backend" envconfig:"MEMORY_BACKEND"`
	QdrantURL        string `json:"qdrantUrl" envconfig:"QDRANT_URL"`
	QdrantCollection string `json:"qdrantCollection" envconfig:"QDRANT_COLLECTION"`
	EmbeddingModel   string `json:"embeddingModel" envconfig:"EMBEDDING_MODEL"`
	// EmbeddingDimension is a deployment constant. Every record in an index
	// must carry this dimension; stores reject mismatches.
	EmbeddingDimension int `json:"embeddingDimension" envconfig:"EMBEDDING_DIMENSION"`
}

// ---------------------------------------------------------------------------
// Events: emission to the external observer
// ---------------------------------------------------------------------------

// EventsConfig configures the event emitter and its sinks.
type EventsConfig struct {
	Enabled         bool   `json:"enabled" envconfig:"EVENTS_ENABLED"`
	KafkaBrokers    string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string `json:"kafkaTopic" envconfig:"KAFKA_TOPIC"`
	BufferSize      int    `json:"bufferSize" envconfig:"EVENTS_BUFFER_SIZE"`
	SlackWebhookURL string `json:"slackWebhookUrl" envconfig:"SLACK_WEBHOOK_URL"`
}

// ---------------------------------------------------------------------------
// Gateway: HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.spotfinder",
			DBFile:  "spotfinder.db",
		},
		Model: ModelConfig{
			Name:               "solar-pro",
			SummarizationModel: "solar-mini",
			APIBase:            "https://api.upstage.ai/v1/solar",
			MaxTokens:          2048,
			Temperature:        0.7,
			MaxRetries:         3,
			RetryBaseDelay:     500 * time.Millisecond,
			DefaultLanguage:    "ja",
		},
		Context: ContextConfig{
			SoftLimitTokens:     6000,
			HardLimitTokens:     8000,
			KeepRecentMessages:  20,
			MaxInputChars:       4000,
			RetrievalTopK:       3,
			SimilarityThreshold: 0.7,
			WarmupTurns:         3,
			LeaseTTL:            30 * time.Second,
			SummarizerTimeout:   30 * time.Second,
		},
		Memory: MemoryConfig{
			Backend:            "sqlite",
			QdrantURL:          "http://localhost:6333",
			QdrantCollection:   "spotfinder_memories",
			EmbeddingModel:     "solar-embedding-1-large",
			EmbeddingDimension: 1024,
		},
		Events: EventsConfig{
			Enabled:    false,
			KafkaTopic: "agent.events",
			BufferSize: 256,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18800,
		},
	}
}
