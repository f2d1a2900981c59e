package embedding

import "context"

// Embedder maps text to a fixed-dimension vector
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that must see the corpus before embedding
type Preparer interface {
	Prepare(corpus []string) error
}
