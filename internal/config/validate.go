package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid or inconsistent configuration value.
// It is returned at startup, never mid-turn.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Validate checks the configuration for internal consistency. It returns the
// first problem found as a ConfigurationError.
func (c *Config) Validate() error {
	if c.Context.SoftLimitTokens <= 0 {
		return &ConfigurationError{Field: "context.softLimitTokens", Reason: "must be positive"}
	}
	if c.Context.HardLimitTokens < c.Context.SoftLimitTokens {
		return &ConfigurationError{Field: "context.hardLimitTokens", Reason: "must be >= softLimitTokens"}
	}
	if c.Context.KeepRecentMessages <= 0 {
		return &ConfigurationError{Field: "context.keepRecentMessages", Reason: "must be positive"}
	}
	if c.Context.RetrievalTopK <= 0 {
		return &ConfigurationError{Field: "context.retrievalTopK", Reason: "must be positive"}
	}
	if c.Context.SimilarityThreshold < 0 || c.Context.SimilarityThreshold > 1 {
		return &ConfigurationError{Field: "context.similarityThreshold", Reason: "must be in [0, 1]"}
	}
	if c.Context.LeaseTTL <= 0 {
		return &ConfigurationError{Field: "context.leaseTtl", Reason: "must be positive"}
	}
	if c.Context.SummarizerTimeout <= 0 {
		return &ConfigurationError{Field: "context.summarizerTimeout", Reason: "must be positive"}
	}
	if c.Memory.EmbeddingDimension <= 0 {
		return &ConfigurationError{Field: "memory.embeddingDimension", Reason: "must be positive"}
	}
	switch strings.ToLower(strings.TrimSpace(c.Memory.Backend)) {
	case "sqlite", "qdrant":
	default:
		return &ConfigurationError{Field: "memory.backend", Reason: fmt.Sprintf("unknown backend %q", c.Memory.Backend)}
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return &ConfigurationError{Field: "model.name", Reason: "must be set"}
	}
	if c.Model.MaxRetries < 0 {
		return &ConfigurationError{Field: "model.maxRetries", Reason: "must not be negative"}
	}
	if c.Events.Enabled && strings.TrimSpace(c.Events.KafkaBrokers) == "" && strings.TrimSpace(c.Events.SlackWebhookURL) == "" {
		return &ConfigurationError{Field: "events", Reason: "enabled but no sink configured"}
	}
	return nil
}
