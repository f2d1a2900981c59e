package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
)

const (
	BuiltinSource = "builtin"
	filePrefix    = "file:"

	maxTemplateSize = 1 << 20
)

// Source provides the prompt template
type Source interface {
	Fetch(ctx context.Context) (Template, error)
}

// NewSource resolves a template location: "builtin" (or empty), "file:<path>",
// or an http(s) URL fetched with apiKey as a bearer token.
func NewSource(location, apiKey string) (Source, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "" || location == BuiltinSource:
		return StaticSource{Template: DefaultTemplate}, nil
	case strings.HasPrefix(location, filePrefix):
		return FileSource{Path: strings.TrimPrefix(location, filePrefix)}, nil
	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		return NewCachedSource(&HTTPSource{URL: location, APIKey: apiKey}), nil
	default:
		return nil, fmt.Errorf("unsupported prompt template source %q", location)
	}
}

// StaticSource always returns the same template
type StaticSource struct {
	Template Template
}

// Fetch returns the fixed template
func (s StaticSource) Fetch(_ context.Context) (Template, error) {
	return s.Template, s.Template.Validate()
}

// FileSource reads the template text from a local file
type FileSource struct {
	Path string
}

// Fetch reads the template text from disk
func (s FileSource) Fetch(_ context.Context) (Template, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read prompt template: %w", err)
	}
	t := Template{Name: filepath.Base(s.Path), Text: string(data)}
	return t, t.Validate()
}

// HTTPSource downloads the template from a prompt hub.
// A JSON body is decoded as {"name", "template"}; any other body is the template text.
type HTTPSource struct {
	URL    string
	APIKey string
	Client *http.Client
}

// Fetch downloads the template, sending the API key as a bearer token when set
func (s *HTTPSource) Fetch(ctx context.Context) (Template, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, http.NoBody)
	if err != nil {
		return Template{}, fmt.Errorf("failed to create template request: %w", err)
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Template{}, fmt.Errorf("failed to fetch prompt template: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTemplateSize))
	if err != nil {
		return Template{}, fmt.Errorf("failed to read prompt template: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Template{}, fmt.Errorf("prompt hub error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	t := Template{Name: s.URL, Text: string(body)}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		if err := json.Unmarshal(body, &t); err != nil {
			return Template{}, fmt.Errorf("failed to decode prompt template: %w", err)
		}
		if t.Name == "" {
			t.Name = s.URL
		}
	}

	return t, t.Validate()
}

// CachedSource fetches once and reuses the template for the process lifetime.
// Failed fetches are not cached.
type CachedSource struct {
	source Source

	mu       sync.Mutex
	template *Template
}

// NewCachedSource wraps source so a successful fetch is reused
func NewCachedSource(source Source) *CachedSource {
	return &CachedSource{source: source}
}

// Fetch returns the cached template, fetching it on first use
func (s *CachedSource) Fetch(ctx context.Context) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.template != nil {
		return *s.template, nil
	}

	t, err := s.source.Fetch(ctx)
	if err != nil {
		return Template{}, err
	}
	s.template = &t
	log.Info().Str("template", t.Name).Msg("prompt template fetched")
	return t, nil
}
