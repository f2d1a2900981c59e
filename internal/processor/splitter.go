package processor

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"pdf-rag/internal/models"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of characters shared by adjacent chunks
	DefaultChunkOverlap = 0

	pageSeparator = "\n\n"
)

// boundary reports whether a chunk may end right before position p
type boundary func(runes []rune, p int) bool

// boundaries are tried in order, from the largest structure to the smallest
var boundaries = []boundary{
	// paragraph
	func(runes []rune, p int) bool {
		return runes[p] == '\n' && p+1 < len(runes) && runes[p+1] == '\n'
	},
	// line
	func(runes []rune, p int) bool {
		return runes[p] == '\n'
	},
	// sentence
	func(runes []rune, p int) bool {
		if !unicode.IsSpace(runes[p]) {
			return false
		}
		switch runes[p-1] {
		case '.', '!', '?':
			return true
		}
		return false
	},
	// word
	func(runes []rune, p int) bool {
		return unicode.IsSpace(runes[p])
	},
}

// Splitter cuts documents into bounded, optionally overlapping chunks
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewSplitter creates a splitter after validating its parameters
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	s := &Splitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Splitter) validate() error {
	if s.ChunkSize <= 0 || s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("%w: chunk size %d, overlap %d", models.ErrInvalidChunking, s.ChunkSize, s.ChunkOverlap)
	}
	return nil
}

// Split chunks every document, preserving document order
func (s *Splitter) Split(documents []models.Document) ([]models.Chunk, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, doc := range documents {
		chunks = append(chunks, s.SplitDocument(doc)...)
	}
	return chunks, nil
}

// SplitDocument greedily cuts the text of one document at the largest
// structural boundary that keeps each chunk within ChunkSize characters.
func (s *Splitter) SplitDocument(doc models.Document) []models.Chunk {
	text, pageStarts := joinPages(doc.Pages)
	runes := []rune(text)
	n := len(runes)

	var chunks []models.Chunk
	start := 0
	for start < n {
		for start < n && unicode.IsSpace(runes[start]) {
			start++
		}
		if start >= n {
			break
		}

		end := n
		if n-start > s.ChunkSize {
			end = cutPoint(runes, start, start+s.ChunkSize)
		}

		chunks = append(chunks, models.Chunk{
			ID:         models.ChunkID(doc.ID, len(chunks)),
			DocumentID: doc.ID,
			Index:      len(chunks),
			Offset:     start,
			PageNumber: pageAt(pageStarts, start),
			Content:    strings.TrimRightFunc(string(runes[start:end]), unicode.IsSpace),
		})

		if end >= n {
			break
		}

		// the next chunk must always start after the current one
		next := end
		if s.ChunkOverlap > 0 && end-s.ChunkOverlap > start {
			next = end - s.ChunkOverlap
		}
		start = next
	}

	return chunks
}

// cutPoint returns the exclusive end of a chunk starting at start, never past limit
func cutPoint(runes []rune, start, limit int) int {
	for _, isBoundary := range boundaries {
		for p := limit; p > start; p-- {
			if isBoundary(runes, p) {
				return p
			}
		}
	}
	return limit
}

// joinPages concatenates page texts and returns the rune offset where each page starts
func joinPages(pages []string) (string, []int) {
	starts := make([]int, len(pages))
	offset := 0
	for i, page := range pages {
		starts[i] = offset
		offset += len([]rune(page)) + len(pageSeparator)
	}
	return strings.Join(pages, pageSeparator), starts
}

func pageAt(pageStarts []int, offset int) int {
	if len(pageStarts) == 0 {
		return 0
	}
	i := sort.Search(len(pageStarts), func(i int) bool { return pageStarts[i] > offset })
	return i
}
