package index

import (
	"context"
	"fmt"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/models"
)

// Index answers similarity queries over the chunks of a completed build
type Index struct {
	embedder embedding.Embedder
	store    Store
}

// New wraps an already populated store
func New(embedder embedding.Embedder, store Store) *Index {
	return &Index{embedder: embedder, store: store}
}

// Len returns the number of indexed chunks
func (ix *Index) Len(ctx context.Context) (int, error) {
	return ix.store.Len(ctx)
}

// Retrieve returns the min(k, n) chunks most similar to query, best first
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidK, k)
	}

	n, err := ix.store.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	if n == 0 {
		return nil, models.ErrEmptyIndex
	}

	vector, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", models.ErrEmbedding, err)
	}

	results, err := ix.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	return results, nil
}
