// Package ports declares the narrow interfaces the query core depends
// on for every external collaborator named in spec.md §6. The core
// never imports a concrete adapter package; adapters are wired in at
// the application's composition root (cmd/queryengine).
package ports

import (
	"context"

	"github.com/hybridrag/queryengine/internal/query/model"
)

// Embedding produces a fixed-dimension vector for a piece of text.
type Embedding interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex performs nearest-neighbour search over an embedding space.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]model.Source, error)
}

// LexicalIndex performs BM25-style keyword search. Its absence (a nil
// port) disables hybrid fusion in C3; vector-only retrieval continues.
type LexicalIndex interface {
	Search(ctx context.Context, text string, topK int) ([]model.Source, error)
}

// ChatMessage is one role+content pair in an LLM prompt.
type ChatMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// GenerateRequest is the input to LLM.Generate.
type GenerateRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// LLM generates free text from a prompt. stream:false per spec.md §6:
// the core always consumes a complete text, building its own
// progressive stream at a higher layer (C6/C7).
type LLM interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// SessionStore is the per-session conversational log. Append is
// serialized per session by the store; Recent returns most-recent-first.
type SessionStore interface {
	Append(ctx context.Context, sessionID, role, content string, metadata map[string]string) error
	Recent(ctx context.Context, sessionID string, n int) ([]model.Message, error)
}

// CacheBackend is a TTL-bounded key/value store with an optional
// secondary semantic index. Every method must fail soft: a backend
// error is never propagated as a query failure, only logged.
type CacheBackend interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry CacheEntry) error
	// SemanticGet looks up the nearest stored entry by embedding
	// cosine similarity. A nil/zero-length vector index disables this.
	SemanticGet(ctx context.Context, vector []float32) (*CacheEntry, float64, bool, error)
	Evict(ctx context.Context) error
}

// CacheEntry is what the cache stores and returns.
type CacheEntry struct {
	Key       string
	Response  model.SpeculativeResponse
	Embedding []float32
}

// WebSearch is consulted by the agentic path only in DEEP/WEB_SEARCH
// modes when web search is enabled.
type WebSearch interface {
	Search(ctx context.Context, query string, n int) ([]model.Source, error)
}
