package http

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/agentic"
	"github.com/hybridrag/queryengine/internal/query/coordinator"
	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
	"github.com/hybridrag/queryengine/internal/query/retrieval"
	"github.com/hybridrag/queryengine/internal/query/router"
	"github.com/hybridrag/queryengine/internal/query/speculative"
	"github.com/hybridrag/queryengine/internal/ratelimit"
)

type fakeEmbedding struct{}

func (fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeEmbedding) Dimension() int { return 3 }

type fakeVectorIndex struct{ sources []model.Source }

func (f fakeVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]model.Source, error) {
	return f.sources, nil
}

type fakeLLM struct{ text string }

func (f fakeLLM) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	return f.text, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.Nop()
	sources := []model.Source{{ChunkID: "a", DocumentName: "doc-a", Text: "alpha", Score: 0.9}}
	fusion := retrieval.New(fakeEmbedding{}, fakeVectorIndex{sources: sources}, nil, logger)
	spec := speculative.New(fusion, fakeLLM{text: "speculative answer"}, nil, nil, fakeEmbedding{}, logger)
	agent := agentic.New(fusion, fakeLLM{text: "agentic answer"}, nil, logger)
	limiter := ratelimit.New(ratelimit.Config{Limit: 100, Window: time.Minute})
	r := router.New(spec, agent, coordinator.New(logger), limiter, logger)
	return NewServer(r, logger)
}

func TestHandleQuery_StreamsFinalChunk(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/query", "application/json",
		strings.NewReader(`{"text":"what is alpha","mode":"fast"}`))
	if err != nil {
		t.Fatalf("POST /v1/query error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	sawFinalEvent := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "event: final") {
			sawFinalEvent = true
		}
	}
	if !sawFinalEvent {
		t.Error("expected an 'event: final' line in the SSE stream")
	}
}

func TestHandleQuery_InvalidBodyRejected(t *testing.T) {
	srv := httptest.NewServer(testServer(t).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/query", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("POST /v1/query error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
