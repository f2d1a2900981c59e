package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"pdf-rag/internal/models"
)

// MemoryStore is an in-memory vector store using brute-force cosine similarity
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	chunks    []models.Chunk
	vectors   [][]float32
	norms     []float64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Reset drops every entry and fixes the vector dimension
func (s *MemoryStore) Reset(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.chunks = nil
	s.vectors = nil
	s.norms = nil
	return nil
}

// Insert appends a chunk and its vector
func (s *MemoryStore) Insert(_ context.Context, chunk models.Chunk, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(vector) != s.dimension {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(vector), s.dimension)
	}
	s.chunks = append(s.chunks, chunk)
	s.vectors = append(s.vectors, vector)
	s.norms = append(s.norms, norm(vector))
	return nil
}

// Search returns the k entries with the highest cosine similarity, best first
func (s *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), s.dimension)
	}

	queryNorm := norm(vector)
	results := make([]models.ScoredChunk, len(s.vectors))
	for i, v := range s.vectors {
		results[i] = models.ScoredChunk{
			Chunk: s.chunks[i],
			Score: cosine(v, vector, s.norms[i], queryNorm),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Len returns the number of stored chunks
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine is zero when either vector has no magnitude
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
