package llm

import (
	"context"
	"fmt"
	"strings"

	"pdf-rag/internal/ollama"

	"github.com/ollama/ollama/api"
)

const (
	DefaultModel       = "llama3.1:latest"
	DefaultTemperature = 0.1
	DefaultNumPredict  = 512
	DefaultNumCtx      = 4096
)

// OllamaLLM handles interactions with the Ollama LLM API
type OllamaLLM struct {
	Client      *api.Client
	Model       string
	Temperature float64
	NumPredict  int
	NumCtx      int
}

// NewOllamaLLM creates a new Ollama LLM client
func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	client, err := ollama.NewClient(host, nil)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultModel
	}

	return &OllamaLLM{
		Client:      client,
		Model:       model,
		Temperature: DefaultTemperature,
		NumPredict:  DefaultNumPredict,
		NumCtx:      DefaultNumCtx,
	}, nil
}

// Complete streams a completion for prompt and returns the concatenated text
func (o *OllamaLLM) Complete(ctx context.Context, prompt string) (string, error) {
	req := api.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Options: map[string]any{
			"temperature": o.Temperature,
			"num_predict": o.NumPredict,
			"num_ctx":     o.NumCtx,
		},
	}

	var responseBuilder strings.Builder

	err := o.Client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return responseBuilder.String(), nil
}
