package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedCall struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// fakeOllama serves /api/embed, failing the first failures requests
func fakeOllama(t *testing.T, failures int32, vector []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		n := calls.Add(1)

		var req embedCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model is loading"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": [][]float32{vector},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestEmbedder(t *testing.T, url string) *OllamaEmbedder {
	t.Helper()
	e, err := NewOllamaEmbedder(url, "test-model")
	require.NoError(t, err)
	e.RetryDelay = time.Millisecond
	return e
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv, calls := fakeOllama(t, 0, []float32{0.1, 0.2, 0.3})
	e := newTestEmbedder(t, srv.URL)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "ollama/test-model", e.Name())
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	srv, calls := fakeOllama(t, 2, []float32{1})
	e := newTestEmbedder(t, srv.URL)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_GivesUpAfterMaxRetries(t *testing.T) {
	srv, calls := fakeOllama(t, 100, []float32{1})
	e := newTestEmbedder(t, srv.URL)
	e.MaxRetries = 2

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_EmptyEmbedding(t *testing.T) {
	srv, _ := fakeOllama(t, 0, []float32{})
	e := newTestEmbedder(t, srv.URL)
	e.MaxRetries = 0

	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOllamaEmbedder_StopsOnCanceledContext(t *testing.T) {
	srv, _ := fakeOllama(t, 100, []float32{1})
	e := newTestEmbedder(t, srv.URL)
	e.RetryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Embed(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewOllamaEmbedder_DefaultModel(t *testing.T) {
	e, err := NewOllamaEmbedder("localhost:11434", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, e.Model)
	assert.Equal(t, DefaultMaxRetries, e.MaxRetries)
}
