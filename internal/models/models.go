package models

import "fmt"

// Document is one ingested PDF file
type Document struct {
	ID    string   `json:"id"`
	Path  string   `json:"path"`
	Pages []string `json:"pages"`
}

// Chunk represents a bounded fragment of a document used as the retrieval unit
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Offset     int    `json:"offset"`
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

// ChunkID builds the identifier of the n-th chunk of a document
func ChunkID(documentID string, n int) string {
	return fmt.Sprintf("%s#%d", documentID, n)
}

// ScoredChunk is a chunk returned by a similarity search
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Query represents a user query
type Query struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Response represents the answer produced for one question
type Response struct {
	Answer    string        `json:"answer"`
	Sources   []ScoredChunk `json:"sources"`
	Timestamp string        `json:"timestamp"`
}
