package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Embedder = (*TFIDFEmbedder)(nil)
var _ Preparer = (*TFIDFEmbedder)(nil)
var _ Embedder = (*OllamaEmbedder)(nil)

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestTFIDFEmbedder_RequiresPrepare(t *testing.T) {
	e := NewTFIDFEmbedder()
	_, err := e.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotPrepared)

	assert.ErrorIs(t, e.Prepare(nil), ErrEmptyCorpus)
	assert.Error(t, e.Prepare([]string{"the and of"}))
}

func TestTFIDFEmbedder_Embed(t *testing.T) {
	e := NewTFIDFEmbedder()
	corpus := []string{
		"Golf balls must conform to the equipment rules.",
		"A penalty stroke applies when the ball is lost.",
		"Players may repair pitch marks on the putting green.",
	}
	require.NoError(t, e.Prepare(corpus))
	assert.Greater(t, e.Dimension(), 0)

	ctx := context.Background()
	vecs := make([][]float32, len(corpus))
	for i, text := range corpus {
		v, err := e.Embed(ctx, text)
		require.NoError(t, err)
		require.Len(t, v, e.Dimension())
		assert.InDelta(t, 1.0, math.Sqrt(dot(v, v)), 1e-5)
		vecs[i] = v
	}

	query, err := e.Embed(ctx, "what happens when a ball is lost")
	require.NoError(t, err)
	best := 0
	for i := range vecs {
		if dot(query, vecs[i]) > dot(query, vecs[best]) {
			best = i
		}
	}
	assert.Equal(t, 1, best)
}

func TestTFIDFEmbedder_UnknownTermsYieldZeroVector(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta", "gamma"}))

	v, err := e.Embed(context.Background(), "zeta")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Zero(t, dot(v, v))
}

func TestTFIDFEmbedder_Deterministic(t *testing.T) {
	corpus := []string{"one two three", "three four five", "five six"}
	a, b := NewTFIDFEmbedder(), NewTFIDFEmbedder()
	require.NoError(t, a.Prepare(corpus))
	require.NoError(t, b.Prepare(corpus))

	va, err := a.Embed(context.Background(), "three five")
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), "three five")
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}
