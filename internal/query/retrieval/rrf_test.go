package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
)

type fakeEmbedding struct{}

func (fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeEmbedding) Dimension() int { return 3 }

type fakeVectorIndex struct {
	sources []model.Source
	err     error
}

func (f fakeVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]model.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sources) > topK {
		return f.sources[:topK], nil
	}
	return f.sources, nil
}

type fakeLexicalIndex struct {
	sources []model.Source
	err     error
}

func (f fakeLexicalIndex) Search(ctx context.Context, text string, topK int) ([]model.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sources) > topK {
		return f.sources[:topK], nil
	}
	return f.sources, nil
}

func TestRetrieve_VectorOnly(t *testing.T) {
	vec := fakeVectorIndex{sources: []model.Source{{ChunkID: "a"}, {ChunkID: "b"}}}
	f := New(fakeEmbedding{}, vec, nil, zerolog.Nop())

	sources, method, err := f.Retrieve(context.Background(), "what is python", 5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != MethodVector {
		t.Errorf("method = %s, want vector", method)
	}
	if len(sources) != 2 {
		t.Errorf("len(sources) = %d, want 2", len(sources))
	}
}

func TestRetrieve_HybridMerge(t *testing.T) {
	vec := fakeVectorIndex{sources: []model.Source{{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}}}
	lex := fakeLexicalIndex{sources: []model.Source{{ChunkID: "b"}, {ChunkID: "a"}, {ChunkID: "d"}}}
	f := New(fakeEmbedding{}, vec, lex, zerolog.Nop())

	sources, method, err := f.Retrieve(context.Background(), "error 404 in v3.1.2", 10, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != MethodHybrid {
		t.Errorf("method = %s, want hybrid", method)
	}
	if len(sources) == 0 {
		t.Fatal("expected merged sources")
	}
	// "a" and "b" each appear in both lists near the top, so should
	// outrank "c"/"d" which appear in only one list.
	top := map[string]bool{sources[0].ChunkID: true, sources[1].ChunkID: true}
	if !top["a"] || !top["b"] {
		t.Errorf("expected a,b to rank highest, got %+v", sources)
	}
}

func TestRetrieve_BothBackendsFail(t *testing.T) {
	vec := fakeVectorIndex{err: errors.New("vector down")}
	lex := fakeLexicalIndex{err: errors.New("lexical down")}
	f := New(fakeEmbedding{}, vec, lex, zerolog.Nop())

	sources, method, err := f.Retrieve(context.Background(), "compare a vs b", 5, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != MethodNone {
		t.Errorf("method = %s, want none", method)
	}
	if len(sources) != 0 {
		t.Errorf("expected empty sources, got %+v", sources)
	}
}

func TestApplyRRF_Deterministic(t *testing.T) {
	a := []model.Source{{ChunkID: "x"}, {ChunkID: "y"}}
	b := []model.Source{{ChunkID: "y"}, {ChunkID: "x"}}
	r1 := ApplyRRF(a, b, RRFK)
	r2 := ApplyRRF(a, b, RRFK)
	if len(r1) != len(r2) || r1[0].ChunkID != r2[0].ChunkID {
		t.Error("ApplyRRF is not deterministic for identical inputs")
	}
}
