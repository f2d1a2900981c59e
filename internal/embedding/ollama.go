package embedding

import (
	"context"
	"fmt"
	"time"

	"pdf-rag/internal/ollama"

	"github.com/ollama/ollama/api"
	"github.com/phuslu/log"
)

const (
	DefaultOllamaModel = "all-minilm"
	DefaultMaxRetries  = 3
	DefaultTimeout     = 30 * time.Second
)

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client     *api.Client
	Model      string
	MaxRetries int
	Timeout    time.Duration
	// RetryDelay is multiplied by the attempt number before each retry
	RetryDelay time.Duration
}

// NewOllamaEmbedder creates a new Ollama embedder
func NewOllamaEmbedder(host string, model string) (*OllamaEmbedder, error) {
	client, err := ollama.NewClient(host, nil)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	return &OllamaEmbedder{
		Client:     client,
		Model:      model,
		MaxRetries: DefaultMaxRetries,
		Timeout:    DefaultTimeout,
		RetryDelay: time.Second,
	}, nil
}

// Name returns the embedding model
func (e *OllamaEmbedder) Name() string {
	return "ollama/" + e.Model
}

// Embed generates an embedding for a text, retrying transient failures
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	var err error

	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			log.Debug().Str("model", e.Model).Int("attempt", retries).Err(err).Msg("retrying embedding")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries) * e.RetryDelay):
			}
		}

		embedding, err = e.createEmbedding(ctx, text)
		if err == nil {
			return embedding, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.MaxRetries, err)
}

func (e *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float32, error) {
	req := api.EmbedRequest{
		Model: e.Model,
		Input: text,
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.Client.Embed(ctx, &req)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned by model %s", e.Model)
	}

	return resp.Embeddings[0], nil
}
