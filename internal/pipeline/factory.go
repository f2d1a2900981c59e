package pipeline

import (
	"context"
	"fmt"
	"time"

	"pdf-rag/internal/config"
	"pdf-rag/internal/database"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/index"
	"pdf-rag/internal/llm"
	"pdf-rag/internal/processor"
	"pdf-rag/internal/prompt"

	"golang.org/x/time/rate"
)

// Option customises the index builder created by FromConfig
type Option func(*index.Builder)

// WithProgress reports embedding progress during Initialize
func WithProgress(fn func(processed, total int)) Option {
	return func(b *index.Builder) {
		b.Progress = fn
	}
}

// FromConfig wires the production components described by cfg.
// The returned cleanup releases external resources and is never nil.
func FromConfig(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Orchestrator, func(), error) {
	cleanup := func() {}

	splitter, err := processor.NewSplitter(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, cleanup, err
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	store, cleanup, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}

	builder := index.NewBuilder(embedder, store)
	builder.MaxConcurrent = cfg.Embedder.MaxConcurrent
	if cfg.Embedder.RatePerSecond > 0 {
		builder.Limiter = rate.NewLimiter(rate.Limit(cfg.Embedder.RatePerSecond), 1)
	}
	for _, opt := range opts {
		opt(builder)
	}

	templates, err := prompt.NewSource(cfg.Prompt.Source, cfg.PromptAPIKey())
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	completer, err := llm.NewOllamaLLM(cfg.Generation.Host, cfg.Generation.Model)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to create LLM client: %w", err)
	}
	completer.Temperature = cfg.GenerationTemperature()
	completer.NumPredict = cfg.Generation.MaxTokens
	completer.NumCtx = cfg.Generation.ContextWindow

	o := New(Components{
		CorpusDir:       cfg.Corpus.Dir,
		Loader:          processor.NewLoader(cfg.Corpus.Extensions...),
		Chunker:         splitter,
		Builder:         builder,
		Templates:       templates,
		Generator:       llm.NewGenerator(completer, time.Duration(cfg.Generation.TimeoutSecs)*time.Second),
		TopK:            cfg.Retrieval.TopK,
		MaxPromptTokens: cfg.MaxPromptTokens(),
		Deduplicate:     cfg.DeduplicateContext(),
	})
	return o, cleanup, nil
}

// NewEmbedder creates the configured embedder
func NewEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case config.EmbedderTFIDF:
		return embedding.NewTFIDFEmbedder(), nil
	case config.EmbedderOllama:
		e, err := embedding.NewOllamaEmbedder(cfg.Embedder.Host, cfg.Embedder.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		e.MaxRetries = cfg.EmbedderMaxRetries()
		e.Timeout = time.Duration(cfg.Embedder.TimeoutSecs) * time.Second
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type)
	}
}

// NewStore creates the configured vector store and its cleanup function
func NewStore(ctx context.Context, cfg *config.AppConfig) (index.Store, func(), error) {
	switch cfg.VectorStore.Type {
	case config.VectorStoreMemory:
		return index.NewMemoryStore(), func() {}, nil
	case config.VectorStorePostgres:
		pg := cfg.VectorStore.Postgres
		if pg == nil || pg.URL == "" {
			return nil, func() {}, fmt.Errorf("postgres vector store requires a connection URL")
		}
		db, err := database.NewDB(ctx, pg.URL)
		if err != nil {
			return nil, func() {}, err
		}
		return database.NewVectorStore(db, pg.Table), db.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
}
