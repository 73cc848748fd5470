package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModel indicates the generation model name is invalid.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidEmbeddingModel indicates the embedding model name is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidEmbeddingDimension indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidThreshold indicates a score threshold is outside [0,1].
	ErrInvalidThreshold = errors.New("invalid score threshold")

	// ErrInvalidPostgres indicates the PostgreSQL settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidMemory indicates the conversation memory bounds are invalid.
	ErrInvalidMemory = errors.New("invalid memory configuration")
)

// validSSLModes are the sslmode values accepted by PostgreSQL.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks all configuration values and returns the first violation.
// Wrapped sentinel errors allow callers to use errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.APIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidModel)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model must not be empty", ErrInvalidEmbeddingModel)
	}
	if c.EmbeddingDimension < 64 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: %d not in [64, 4096]", ErrInvalidEmbeddingDimension, c.EmbeddingDimension)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %g not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: %d not in [1, 65536]", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.ChunkSize < 50 {
		return fmt.Errorf("%w: chunk_size %d below minimum 50", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k %d not in [1, 50]", ErrInvalidChunking, c.TopK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score %g not in [0, 1]", ErrInvalidThreshold, c.MinScore)
	}
	if c.InsufficiencyThreshold < 0 || c.InsufficiencyThreshold > 1 {
		return fmt.Errorf("%w: insufficiency_threshold %g not in [0, 1]", ErrInvalidThreshold, c.InsufficiencyThreshold)
	}
	if c.InsufficiencyThreshold < c.MinScore {
		return fmt.Errorf("%w: insufficiency_threshold %g below min_score %g",
			ErrInvalidThreshold, c.InsufficiencyThreshold, c.MinScore)
	}
	if c.ContextBudget < c.ChunkSize {
		return fmt.Errorf("%w: context_budget %d smaller than one chunk", ErrInvalidChunking, c.ContextBudget)
	}

	if c.PostgresHost == "" || c.PostgresDBName == "" || c.PostgresUser == "" {
		return fmt.Errorf("%w: host, user and db name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d not in [1, 65535]", ErrInvalidPostgres, c.PostgresPort)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: unknown sslmode %q", ErrInvalidPostgres, c.PostgresSSLMode)
	}

	if c.MaxTurns < 2 || c.MaxTurns > 10000 {
		return fmt.Errorf("%w: max_turns %d not in [2, 10000]", ErrInvalidMemory, c.MaxTurns)
	}
	if c.ContextWindow < 1 || c.ContextWindow > c.MaxTurns {
		return fmt.Errorf("%w: context_window %d not in [1, max_turns]", ErrInvalidMemory, c.ContextWindow)
	}

	return nil
}
