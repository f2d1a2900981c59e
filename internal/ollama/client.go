// Package ollama builds API clients for a local or remote Ollama server.
package ollama

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// ResolveHost returns the server URL for host, falling back to OLLAMA_HOST
// (or the Ollama default) when host is empty.
func ResolveHost(host string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return envconfig.Host(), nil
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama host %q: %w", host, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid Ollama host %q", host)
	}
	return u, nil
}

// NewClient creates an API client for host using httpClient, or http.DefaultClient when nil
func NewClient(host string, httpClient *http.Client) (*api.Client, error) {
	u, err := ResolveHost(host)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return api.NewClient(u, httpClient), nil
}
