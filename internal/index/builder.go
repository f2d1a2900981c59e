package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/models"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrent limits concurrent embedding requests
const DefaultMaxConcurrent = 3

// BuildStats summarises one index build
type BuildStats struct {
	Chunks    int
	Indexed   int
	Skipped   int
	Dimension int
	Duration  time.Duration
}

// Builder embeds chunks and loads them into a store
type Builder struct {
	Embedder      embedding.Embedder
	Store         Store
	MaxConcurrent int
	// Limiter throttles embedding requests when set
	Limiter *rate.Limiter
	// Progress is called after each chunk is embedded
	Progress func(processed, total int)
}

// NewBuilder creates a builder with the default concurrency
func NewBuilder(embedder embedding.Embedder, store Store) *Builder {
	return &Builder{
		Embedder:      embedder,
		Store:         store,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

type embedded struct {
	vector []float32
	err    error
}

// Build resets the store and indexes chunks in order.
// Chunks that fail to embed are skipped; an index with no chunks is an error.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (*Index, *BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{Chunks: len(chunks)}

	if len(chunks) == 0 {
		return nil, stats, fmt.Errorf("%w: no chunks to index", models.ErrEmptyIndex)
	}

	if p, ok := b.Embedder.(embedding.Preparer); ok {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		if err := p.Prepare(texts); err != nil {
			return nil, stats, fmt.Errorf("%w: failed to prepare embedder: %w", models.ErrEmbedding, err)
		}
	}

	results, err := b.embedAll(ctx, chunks)
	if err != nil {
		return nil, stats, err
	}

	dimension := 0
	for _, r := range results {
		if r.err == nil {
			dimension = len(r.vector)
			break
		}
	}
	if dimension == 0 {
		stats.Skipped = len(chunks)
		return nil, stats, fmt.Errorf("%w: every chunk failed to embed", models.ErrEmptyIndex)
	}
	stats.Dimension = dimension

	if err := b.Store.Reset(ctx, dimension); err != nil {
		return nil, stats, fmt.Errorf("failed to reset vector store: %w", err)
	}

	for i, r := range results {
		err := r.err
		if err == nil && len(r.vector) != dimension {
			err = fmt.Errorf("%w: chunk %s has dimension %d, want %d", models.ErrEmbedding, chunks[i].ID, len(r.vector), dimension)
		}
		if err != nil {
			stats.Skipped++
			log.Warn().Str("chunk", chunks[i].ID).Err(err).Msg("skipping chunk")
			continue
		}

		if err := b.Store.Insert(ctx, chunks[i], r.vector); err != nil {
			return nil, stats, fmt.Errorf("failed to store chunk %s: %w", chunks[i].ID, err)
		}
		stats.Indexed++
	}

	stats.Duration = time.Since(start)
	log.Info().
		Int("chunks", stats.Chunks).
		Int("indexed", stats.Indexed).
		Int("skipped", stats.Skipped).
		Int("dimension", stats.Dimension).
		Dur("duration", stats.Duration).
		Msg("index built")

	return &Index{embedder: b.Embedder, store: b.Store}, stats, nil
}

// embedAll embeds every chunk with bounded concurrency.
// Per-chunk failures are returned in the results; only cancellation aborts.
func (b *Builder) embedAll(ctx context.Context, chunks []models.Chunk) ([]embedded, error) {
	results := make([]embedded, len(chunks))

	limit := b.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	var mu sync.Mutex
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range chunks {
		g.Go(func() error {
			if b.Limiter != nil {
				if err := b.Limiter.Wait(gctx); err != nil {
					return err
				}
			}

			vector, err := b.Embedder.Embed(gctx, chunks[i].Content)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				err = fmt.Errorf("%w: %w", models.ErrEmbedding, err)
			case len(vector) == 0:
				err = fmt.Errorf("%w: empty vector", models.ErrEmbedding)
			}
			results[i] = embedded{vector: vector, err: err}

			mu.Lock()
			processed++
			if b.Progress != nil {
				b.Progress(processed, len(chunks))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("index build interrupted: %w", err)
		}
		return nil, err
	}
	return results, nil
}
