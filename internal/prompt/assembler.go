package prompt

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"pdf-rag/internal/models"
)

// Prompt is the final text sent to the generator together with the chunks it cites
type Prompt struct {
	Text    string
	Chunks  []models.ScoredChunk
	Tokens  int
	Dropped int
}

// Assembler fills the template with ranked chunks under a token budget
type Assembler struct {
	Template Template
	// MaxTokens bounds the estimated prompt size; zero disables the bound
	MaxTokens int
	// Deduplicate drops chunks whose text repeats a higher-ranked chunk
	Deduplicate bool
}

// NewAssembler creates an assembler with deduplication enabled
func NewAssembler(template Template, maxTokens int) *Assembler {
	return &Assembler{
		Template:    template,
		MaxTokens:   maxTokens,
		Deduplicate: true,
	}
}

// EstimateTokens approximates the token count of text: four ASCII characters
// per token, and one token for every other character.
func EstimateTokens(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other
}

// Assemble renders the prompt for question from chunks in rank order.
// Lowest-ranked chunks are dropped until the prompt fits the budget.
func (a *Assembler) Assemble(chunks []models.ScoredChunk, question string) (*Prompt, error) {
	kept := chunks
	if a.Deduplicate {
		kept = dedupe(chunks)
	}
	dropped := len(chunks) - len(kept)

	for {
		text := a.Template.Render(FormatContext(kept), question)
		tokens := EstimateTokens(text)
		if a.MaxTokens <= 0 || tokens <= a.MaxTokens {
			return &Prompt{
				Text:    text,
				Chunks:  kept,
				Tokens:  tokens,
				Dropped: dropped,
			}, nil
		}
		if len(kept) == 0 {
			return nil, fmt.Errorf("%w: %d estimated tokens, budget %d", models.ErrPromptTooLarge, tokens, a.MaxTokens)
		}
		kept = kept[:len(kept)-1]
		dropped++
	}
}

// FormatContext joins chunk texts, each under a [source, page N] header
func FormatContext(chunks []models.ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(SourceLabel(c.Chunk))
		b.WriteString("\n")
		b.WriteString(c.Chunk.Content)
	}
	return b.String()
}

// SourceLabel names the document and page a chunk came from
func SourceLabel(c models.Chunk) string {
	source := filepath.Base(c.DocumentID)
	if c.PageNumber > 0 {
		return fmt.Sprintf("[%s, page %d]", source, c.PageNumber)
	}
	return fmt.Sprintf("[%s]", source)
}

func dedupe(chunks []models.ScoredChunk) []models.ScoredChunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]models.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		key := strings.Join(strings.Fields(c.Chunk.Content), " ")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
