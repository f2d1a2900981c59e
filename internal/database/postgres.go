package database

import (
	"context"
	"fmt"

	"pdf-rag/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DefaultTable stores the chunks of the current build
const DefaultTable = "document_chunks"

// DB represents the database connection
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}

// VectorStore keeps chunk embeddings in a pgvector table.
// The table is recreated on every Reset, so each build starts from scratch.
type VectorStore struct {
	db    *DB
	table string
}

// NewVectorStore creates a store backed by table, or DefaultTable when empty
func NewVectorStore(db *DB, table string) *VectorStore {
	if table == "" {
		table = DefaultTable
	}
	return &VectorStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// Reset drops and recreates the chunk table for vectors of the given dimension
func (s *VectorStore) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	if _, err := s.db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	if _, err := s.db.Pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("failed to drop chunk table: %w", err)
	}

	_, err := s.db.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			seq BIGSERIAL PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			char_offset INTEGER NOT NULL,
			page_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)
	`, s.table, dimension))
	if err != nil {
		return fmt.Errorf("failed to create chunk table: %w", err)
	}

	return nil
}

// Insert stores a chunk with its embedding
func (s *VectorStore) Insert(ctx context.Context, chunk models.Chunk, vector []float32) error {
	_, err := s.db.Pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (chunk_id, document_id, chunk_index, char_offset, page_number, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.table),
		chunk.ID,
		chunk.DocumentID,
		chunk.Index,
		chunk.Offset,
		chunk.PageNumber,
		chunk.Content,
		pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Search finds the k chunks closest to vector by cosine distance.
// Equal distances keep insertion order.
func (s *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	rows, err := s.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_id, chunk_index, char_offset, page_number, content,
		       1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`, s.table), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var r models.ScoredChunk
		if err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.DocumentID,
			&r.Chunk.Index,
			&r.Chunk.Offset,
			&r.Chunk.PageNumber,
			&r.Chunk.Content,
			&r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// Len counts the stored chunks; a missing table counts as empty
func (s *VectorStore) Len(ctx context.Context) (int, error) {
	var exists bool
	if err := s.db.Pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.table).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to look up chunk table: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var n int
	if err := s.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
