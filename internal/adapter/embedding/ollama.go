// Package embedding adapts Ollama's embedding API to the query core's
// ports.Embedding interface. Adapted from
// internal/kb/embeddings.go (EmbeddingService), trimmed to the
// Embed/Dimension contract the core actually depends on.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

const (
	DefaultModel     = "nomic-embed-text"
	DefaultDimension = 768
	DefaultHost      = "http://localhost:11434"
)

// Config configures the Ollama-backed embedding adapter.
type Config struct {
	Host      string
	Model     string
	Dimension int
}

// Adapter generates vector embeddings via Ollama.
type Adapter struct {
	client    *api.Client
	model     string
	dimension int
	logger    zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// New builds an Adapter.
func New(cfg Config, logger zerolog.Logger) (*Adapter, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}

	hostURL, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host url: %w", err)
	}

	return &Adapter{
		client:    api.NewClient(hostURL, http.DefaultClient),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		logger:    logger.With().Str("component", "embedding").Logger(),
	}, nil
}

// ensureModel pulls the configured model on first use if it is not
// already present locally.
func (a *Adapter) ensureModel(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}

	if _, err := a.client.Show(ctx, &api.ShowRequest{Model: a.model}); err == nil {
		a.ready = true
		return nil
	}

	a.logger.Info().Str("model", a.model).Msg("pulling embedding model")
	if err := a.client.Pull(ctx, &api.PullRequest{Model: a.model}, func(api.ProgressResponse) error { return nil }); err != nil {
		return fmt.Errorf("failed to pull embedding model %s: %w", a.model, err)
	}
	a.ready = true
	return nil
}

// Embed implements ports.Embedding.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := a.ensureModel(ctx); err != nil {
		return nil, err
	}

	resp, err := a.client.Embed(ctx, &api.EmbedRequest{Model: a.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings in response")
	}

	vec := make([]float32, len(resp.Embeddings[0]))
	for i, v := range resp.Embeddings[0] {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimension implements ports.Embedding.
func (a *Adapter) Dimension() int {
	return a.dimension
}
