package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
)

func TestCache_SetThenGetExact(t *testing.T) {
	c := New(Config{LocalSize: 10}, nil, zerolog.Nop())
	ctx := context.Background()

	resp := model.SpeculativeResponse{
		Text:       "Python is a programming language.",
		Confidence: 0.8,
		Sources:    []model.Source{{ChunkID: "c1", Text: "Python docs"}},
	}

	c.Set(ctx, "What is Python?", 5, resp, nil)

	hit, ok := c.Get(ctx, "What is Python?", 5, nil)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if hit.MatchType != HitExact {
		t.Errorf("MatchType = %s, want exact", hit.MatchType)
	}
	if hit.Response.Text != resp.Text {
		t.Errorf("Response.Text = %q, want %q", hit.Response.Text, resp.Text)
	}
}

func TestCache_InvalidResponseNotStored(t *testing.T) {
	c := New(Config{LocalSize: 10}, nil, zerolog.Nop())
	ctx := context.Background()

	resp := model.SpeculativeResponse{
		Text:       "Unable to generate a response right now.",
		Confidence: 0.9,
		Sources:    []model.Source{{ChunkID: "c1", Text: "x"}},
	}
	c.Set(ctx, "q", 5, resp, nil)

	if _, ok := c.Get(ctx, "q", 5, nil); ok {
		t.Error("expected miss for invalid (failure-marker) response")
	}
}

func TestCache_MissForUnseenQuery(t *testing.T) {
	c := New(Config{LocalSize: 10}, nil, zerolog.Nop())
	if _, ok := c.Get(context.Background(), "never set", 5, nil); ok {
		t.Error("expected miss")
	}
}

func TestCache_SemanticNearHit(t *testing.T) {
	cfg := Config{
		LocalSize:  10,
		SemanticOn: true,
		Semantic:   SemanticIndexConfig{ExactThreshold: 0.95, NearThreshold: 0.85, ANNThreshold: 500},
	}
	c := New(cfg, nil, zerolog.Nop())
	ctx := context.Background()

	resp := model.SpeculativeResponse{
		Text:       "Machine learning is a subfield of AI.",
		Confidence: 0.75,
		Sources:    []model.Source{{ChunkID: "c1", Text: "ML docs"}},
	}
	embedding := []float32{1, 0, 0}
	c.Set(ctx, "What is machine learning?", 5, resp, embedding)

	near := []float32{0.99, 0.01, 0}
	hit, ok := c.Get(ctx, "a completely different query string", 5, near)
	if !ok {
		t.Fatal("expected semantic hit")
	}
	if hit.MatchType != HitExact && hit.MatchType != HitSemantic {
		t.Errorf("unexpected match type %s", hit.MatchType)
	}
}
