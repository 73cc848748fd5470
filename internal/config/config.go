// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (DOCCHAT_* plus GEMINI_API_KEY, SERPER_API_KEY, DATABASE_URL)
//  2. Config file (~/.docchat/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - AI: Gemini model, embedding model and dimension, generation limits
//   - Storage: PostgreSQL connection and local data directory (see storage.go)
//   - RAG: chunking, retrieval and prompt-budget tuning
//   - Web: fetch/render timeouts, crawl depth, search fallback
//   - Memory: conversation window and turn cap
//   - Server: HTTP listen address
//
// Sensitive values (API keys, passwords) are never logged; validation lives
// in validation.go and uses sentinel errors checkable with errors.Is.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultModel is the default Gemini generation model.
	DefaultModel = "gemini-2.5-flash"

	// DefaultEmbeddingModel is the default Gemini embedding model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; the store schema uses 768.
	DefaultEmbeddingModel = "gemini-embedding-001"

	// DefaultEmbeddingDimension is the vector dimension persisted by the
	// knowledge store. It must not change for an existing store.
	DefaultEmbeddingDimension = 768
)

// Config stores the full application configuration.
type Config struct {
	// AI configuration.
	APIKey             string        `mapstructure:"api_key"` // SENSITIVE: never logged
	Model              string        `mapstructure:"model"`
	EmbeddingModel     string        `mapstructure:"embedding_model"`
	EmbeddingDimension int           `mapstructure:"embedding_dimension"`
	Temperature        float32       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	LLMTimeout         time.Duration `mapstructure:"llm_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RequestsPerMinute  int           `mapstructure:"requests_per_minute"`

	// Storage configuration (see storage.go).
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
	DataDir          string `mapstructure:"data_dir"`

	// RAG configuration.
	ChunkSize              int           `mapstructure:"chunk_size"`
	ChunkOverlap           int           `mapstructure:"chunk_overlap"`
	TopK                   int           `mapstructure:"top_k"`
	MinScore               float32       `mapstructure:"min_score"`
	InsufficiencyThreshold float32       `mapstructure:"insufficiency_threshold"`
	ContextBudget          int           `mapstructure:"context_budget"` // characters
	SearchTimeout          time.Duration `mapstructure:"search_timeout"`

	// Web configuration.
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	RenderTimeout    time.Duration `mapstructure:"render_timeout"`
	MaxCrawlDepth    int           `mapstructure:"max_crawl_depth"`
	SearchAPIKey     string        `mapstructure:"search_api_key"` // SENSITIVE: never logged
	WebSearchEnabled bool          `mapstructure:"web_search_enabled"`

	// Memory configuration.
	MaxTurns      int `mapstructure:"max_turns"`
	ContextWindow int `mapstructure:"context_window"`

	// Server configuration.
	Addr string `mapstructure:"addr"`
}

// Load loads configuration with priority env > file > defaults and validates
// it fail-fast.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docchat")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	// AI defaults
	v.SetDefault("model", DefaultModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	v.SetDefault("temperature", 0.1)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("llm_timeout", "60s")
	v.SetDefault("max_retries", 3)
	v.SetDefault("requests_per_minute", 30)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docchat")
	v.SetDefault("postgres_password", "docchat_dev_password")
	v.SetDefault("postgres_db_name", "docchat")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("data_dir", filepath.Join(configDir, "data"))

	// RAG defaults
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("top_k", 6)
	v.SetDefault("min_score", 0.30)
	v.SetDefault("insufficiency_threshold", 0.45)
	v.SetDefault("context_budget", 6000)
	v.SetDefault("search_timeout", "10s")

	// Web defaults
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("render_timeout", "45s")
	v.SetDefault("max_crawl_depth", 1)
	v.SetDefault("web_search_enabled", false)

	// Memory defaults
	v.SetDefault("max_turns", 50)
	v.SetDefault("context_window", 6)

	// Server defaults
	v.SetDefault("addr", "127.0.0.1:8490")
}

// bindEnvVariables binds environment overrides explicitly. Secrets are only
// ever read from the environment, never written to the config file by us.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("api_key", "GEMINI_API_KEY")
	mustBind("search_api_key", "SERPER_API_KEY")

	mustBind("model", "DOCCHAT_MODEL")
	mustBind("embedding_model", "DOCCHAT_EMBEDDING_MODEL")
	mustBind("addr", "DOCCHAT_ADDR")
	mustBind("data_dir", "DOCCHAT_DATA_DIR")
	mustBind("web_search_enabled", "DOCCHAT_WEB_SEARCH")
	mustBind("postgres_password", "DOCCHAT_POSTGRES_PASSWORD")
}
