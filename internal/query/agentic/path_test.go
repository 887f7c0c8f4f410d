package agentic

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
	"github.com/hybridrag/queryengine/internal/query/retrieval"
)

type fakeEmbedding struct{}

func (fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeEmbedding) Dimension() int { return 3 }

type fakeVectorIndex struct {
	sources []model.Source
}

func (f fakeVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]model.Source, error) {
	return f.sources, nil
}

type fakeLLM struct {
	text string
}

func (f fakeLLM) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	return f.text, nil
}

type slowLLM struct {
	delay time.Duration
}

func (s slowLLM) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	select {
	case <-time.After(s.delay):
		return "late answer", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func drain(ch <-chan model.ReasoningStep) []model.ReasoningStep {
	var steps []model.ReasoningStep
	for s := range ch {
		steps = append(steps, s)
	}
	return steps
}

func TestProcess_TerminatesWithResponseStep(t *testing.T) {
	sources := []model.Source{
		{ChunkID: "a", DocumentName: "doc-a", Text: "alpha content", Score: 0.9},
		{ChunkID: "b", DocumentName: "doc-b", Text: "beta content", Score: 0.8},
		{ChunkID: "c", DocumentName: "doc-c", Text: "gamma content", Score: 0.7},
		{ChunkID: "d", DocumentName: "doc-d", Text: "delta content", Score: 0.75},
	}
	fusion := retrieval.New(fakeEmbedding{}, fakeVectorIndex{sources: sources}, nil, zerolog.Nop())
	p := New(fusion, fakeLLM{text: "final synthesized answer"}, nil, zerolog.Nop())

	ch := p.Process(context.Background(), Params{Query: "what is alpha", TopK: 5, Deadline: 2 * time.Second, MaxSteps: 5})
	steps := drain(ch)

	if len(steps) == 0 {
		t.Fatal("expected at least one step")
	}
	last := steps[len(steps)-1]
	if last.Type != model.StepResponse {
		t.Errorf("last step type = %s, want response", last.Type)
	}
	if last.Content == "" {
		t.Error("expected non-empty final response content")
	}
	if steps[0].Type != model.StepPlanning {
		t.Errorf("first step type = %s, want planning", steps[0].Type)
	}

	responseCount := 0
	for _, s := range steps {
		if s.Type == model.StepResponse {
			responseCount++
		}
	}
	if responseCount != 1 {
		t.Errorf("expected exactly one response step, got %d", responseCount)
	}
}

func TestProcess_StepBudgetForcesTermination(t *testing.T) {
	// Sparse, low-scoring evidence never clears the decide threshold,
	// so only the step budget can end the loop.
	sources := []model.Source{{ChunkID: "a", DocumentName: "doc-a", Text: "thin evidence", Score: 0.2}}
	fusion := retrieval.New(fakeEmbedding{}, fakeVectorIndex{sources: sources}, nil, zerolog.Nop())
	p := New(fusion, fakeLLM{text: "best effort answer"}, nil, zerolog.Nop())

	ch := p.Process(context.Background(), Params{Query: "obscure query", TopK: 5, Deadline: 2 * time.Second, MaxSteps: 3})
	steps := drain(ch)

	actionCount := 0
	for _, s := range steps {
		if s.Type == model.StepAction {
			actionCount++
		}
	}
	if actionCount != 3 {
		t.Errorf("expected 3 action cycles (step budget), got %d", actionCount)
	}
	if steps[len(steps)-1].Type != model.StepResponse {
		t.Error("expected terminal response step after budget exhaustion")
	}
}

func TestProcess_DeadlineYieldsPartialResponse(t *testing.T) {
	sources := []model.Source{{ChunkID: "a", DocumentName: "doc-a", Text: "alpha", Score: 0.9}}
	fusion := retrieval.New(fakeEmbedding{}, fakeVectorIndex{sources: sources}, nil, zerolog.Nop())
	p := New(fusion, slowLLM{delay: 500 * time.Millisecond}, nil, zerolog.Nop())

	ch := p.Process(context.Background(), Params{Query: "what is alpha", TopK: 5, Deadline: 30 * time.Millisecond, MaxSteps: 15})
	steps := drain(ch)

	if len(steps) == 0 {
		t.Fatal("expected at least one step even on immediate deadline expiry")
	}
	last := steps[len(steps)-1]
	if last.Type != model.StepResponse {
		t.Fatalf("last step type = %s, want response", last.Type)
	}
	partial, ok := last.Metadata["partial_results"].(bool)
	if !ok || !partial {
		t.Errorf("expected partial_results=true in final step metadata, got %+v", last.Metadata)
	}
}
