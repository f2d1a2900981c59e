package index

import (
	"context"

	"pdf-rag/internal/models"
)

// Store holds chunk vectors and answers nearest-neighbour queries.
// Search returns at most k chunks ordered by descending cosine similarity,
// breaking ties by insertion order.
type Store interface {
	Reset(ctx context.Context, dimension int) error
	Insert(ctx context.Context, chunk models.Chunk, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)
	Len(ctx context.Context) (int, error)
}
