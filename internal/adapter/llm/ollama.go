// Package llm adapts Ollama's chat completion API to the query core's
// ports.LLM interface. Grounded on the same github.com/ollama/ollama/api
// client internal/kb/embeddings.go already uses for embeddings; no
// pack file wires Ollama for chat, so the request/response shape here
// is authored directly against that client's documented API rather
// than ported from a teacher function.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/ports"
)

const (
	DefaultModel = "llama3.1"
	DefaultHost  = "http://localhost:11434"
)

// Config configures the Ollama-backed LLM adapter.
type Config struct {
	Host  string
	Model string
}

// Adapter generates chat completions via Ollama.
type Adapter struct {
	client *api.Client
	model  string
	logger zerolog.Logger
}

// New builds an Adapter.
func New(cfg Config, logger zerolog.Logger) (*Adapter, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	hostURL, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host url: %w", err)
	}

	return &Adapter{
		client: api.NewClient(hostURL, http.DefaultClient),
		model:  cfg.Model,
		logger: logger.With().Str("component", "llm").Logger(),
	}, nil
}

// Generate implements ports.LLM. Ollama's Chat API always streams
// callback-style; stream:false is honored by setting Stream to false
// and accumulating the single resulting message.
func (a *Adapter) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("generate request has no messages")
	}

	stream := false
	options := map[string]interface{}{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	chatReq := &api.ChatRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var b strings.Builder
	err := a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat request failed: %w", err)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("ollama returned an empty response")
	}
	return b.String(), nil
}
