package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdf-rag/internal/models"
)

// DefaultTimeout bounds a single generation call
const DefaultTimeout = 120 * time.Second

// Completer turns a prompt into text
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator bounds a Completer with a timeout and classifies its failures
type Generator struct {
	completer Completer
	timeout   time.Duration
}

// NewGenerator wraps completer; a zero timeout only honours the caller's context
func NewGenerator(completer Completer, timeout time.Duration) *Generator {
	return &Generator{completer: completer, timeout: timeout}
}

type completion struct {
	answer string
	err    error
}

// Generate returns the trimmed completion of prompt.
// The call returns at the deadline even if the completer ignores cancellation.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan completion, 1)
	go func() {
		answer, err := g.completer.Complete(ctx, prompt)
		done <- completion{answer: answer, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", g.classify(ctx.Err())
	case c := <-done:
		if c.err != nil {
			return "", g.classify(c.err)
		}
		answer := strings.TrimSpace(c.answer)
		if answer == "" {
			return "", fmt.Errorf("%w: empty answer", models.ErrGeneration)
		}
		return answer, nil
	}
}

func (g *Generator) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", models.ErrGenerationTimeout, g.timeout, err)
	}
	return fmt.Errorf("%w: %w", models.ErrGeneration, err)
}
