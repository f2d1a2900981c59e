package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedder and vector store implementations
const (
	EmbedderOllama = "ollama"
	EmbedderTFIDF  = "tfidf"

	VectorStoreMemory   = "memory"
	VectorStorePostgres = "postgres"
)

// DefaultAPIKeyEnv names the variable holding the prompt hub API key
const DefaultAPIKeyEnv = "PDFQA_PROMPT_API_KEY"

const (
	defaultTemperature = 0.1
	defaultMaxRetries  = 3
)

// CorpusConfig locates the documents to index.
type CorpusConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type          string  `yaml:"type"`
	Host          string  `yaml:"host"`
	Model         string  `yaml:"model"`
	TimeoutSecs   int     `yaml:"timeout_secs"`
	MaxRetries    *int    `yaml:"max_retries,omitempty"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig contains connection details for the pgvector store.
type PostgresConfig struct {
	URL   string `yaml:"url"`
	Table string `yaml:"table"`
}

// RetrievalConfig controls how many chunks back an answer.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GenerationConfig configures the answer model.
type GenerationConfig struct {
	Host          string   `yaml:"host"`
	Model         string   `yaml:"model"`
	TimeoutSecs   int      `yaml:"timeout_secs"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	MaxTokens     int      `yaml:"max_tokens"`
	ContextWindow int      `yaml:"context_window"`
}

// PromptConfig locates the prompt template.
type PromptConfig struct {
	Source      string `yaml:"source"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Deduplicate *bool  `yaml:"deduplicate,omitempty"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	AllowOrigins    []string `yaml:"allow_origins"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generation  GenerationConfig  `yaml:"generation"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from path, applies PDFQA_* environment overrides and validates it.
// An empty path or a missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

// PromptAPIKey reads the prompt hub API key from the configured environment variable
func (c *AppConfig) PromptAPIKey() string {
	return os.Getenv(c.Prompt.APIKeyEnv)
}

// DeduplicateContext reports whether repeated chunks are dropped from prompts
func (c *AppConfig) DeduplicateContext() bool {
	return c.Prompt.Deduplicate == nil || *c.Prompt.Deduplicate
}

// GenerationTemperature returns the sampling temperature; an explicit 0 is kept
func (c *AppConfig) GenerationTemperature() float64 {
	if c.Generation.Temperature == nil {
		return defaultTemperature
	}
	return *c.Generation.Temperature
}

// EmbedderMaxRetries returns how often a failed embedding is retried; an explicit 0 disables retries
func (c *AppConfig) EmbedderMaxRetries() int {
	if c.Embedder.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *c.Embedder.MaxRetries
}

// MaxPromptTokens is the context window minus the tokens reserved for the answer
// and a tenth of the window held back for token estimation error
func (c *AppConfig) MaxPromptTokens() int {
	return c.Generation.ContextWindow - c.Generation.MaxTokens - c.Generation.ContextWindow/10
}

// Validate checks settings that would otherwise fail deep inside the pipeline
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize))
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap))
	}
	switch c.Embedder.Type {
	case EmbedderOllama, EmbedderTFIDF:
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.type %q", c.Embedder.Type))
	}
	if c.EmbedderMaxRetries() < 0 {
		errs = append(errs, fmt.Errorf("embedder.max_retries must not be negative, got %d", c.EmbedderMaxRetries()))
	}
	switch c.VectorStore.Type {
	case VectorStoreMemory:
	case VectorStorePostgres:
		if c.VectorStore.Postgres == nil || c.VectorStore.Postgres.URL == "" {
			errs = append(errs, errors.New("vector_store.postgres.url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store.type %q", c.VectorStore.Type))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK))
	}
	if c.MaxPromptTokens() <= 0 {
		errs = append(errs, fmt.Errorf("generation.context_window (%d) leaves no room for a prompt after generation.max_tokens (%d)",
			c.Generation.ContextWindow, c.Generation.MaxTokens))
	}
	return errors.Join(errs...)
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "doc"
	}
	if len(cfg.Corpus.Extensions) == 0 {
		cfg.Corpus.Extensions = []string{".pdf"}
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = EmbedderOllama
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "all-minilm"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.MaxConcurrent == 0 {
		cfg.Embedder.MaxConcurrent = 3
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = VectorStoreMemory
	}
	if cfg.VectorStore.Type == VectorStorePostgres && cfg.VectorStore.Postgres != nil && cfg.VectorStore.Postgres.Table == "" {
		cfg.VectorStore.Postgres.Table = "document_chunks"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Generation.Host == "" {
		cfg.Generation.Host = cfg.Embedder.Host
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "llama3.1:latest"
	}
	if cfg.Generation.TimeoutSecs == 0 {
		cfg.Generation.TimeoutSecs = 120
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 512
	}
	if cfg.Generation.ContextWindow == 0 {
		cfg.Generation.ContextWindow = 4096
	}
	if cfg.Prompt.Source == "" {
		cfg.Prompt.Source = "builtin"
	}
	if cfg.Prompt.APIKeyEnv == "" {
		cfg.Prompt.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.AllowOrigins) == 0 {
		cfg.Server.AllowOrigins = []string{"*"}
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// applyEnv overrides file settings with PDFQA_* variables
func applyEnv(cfg *AppConfig) error {
	strs := map[string]*string{
		"PDFQA_CORPUS_DIR":       &cfg.Corpus.Dir,
		"PDFQA_EMBEDDER_TYPE":    &cfg.Embedder.Type,
		"PDFQA_EMBEDDER_MODEL":   &cfg.Embedder.Model,
		"PDFQA_OLLAMA_HOST":      &cfg.Embedder.Host,
		"PDFQA_GENERATION_MODEL": &cfg.Generation.Model,
		"PDFQA_VECTOR_STORE":     &cfg.VectorStore.Type,
		"PDFQA_PROMPT_SOURCE":    &cfg.Prompt.Source,
		"PDFQA_SERVER_ADDR":      &cfg.Server.Addr,
		"PDFQA_LOG_LEVEL":        &cfg.Logging.Level,
		"PDFQA_LOG_FORMAT":       &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PDFQA_CHUNK_SIZE":         &cfg.Chunker.ChunkSize,
		"PDFQA_CHUNK_OVERLAP":      &cfg.Chunker.ChunkOverlap,
		"PDFQA_TOP_K":              &cfg.Retrieval.TopK,
		"PDFQA_GENERATION_TIMEOUT": &cfg.Generation.TimeoutSecs,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv("PDFQA_DATABASE_URL"); v != "" {
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{}
		}
		cfg.VectorStore.Postgres.URL = v
	}
	return nil
}
