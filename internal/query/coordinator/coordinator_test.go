package coordinator

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
)

func TestDeduplicateSources_DropsExactAndNearDuplicates(t *testing.T) {
	sources := []model.Source{
		{ChunkID: "a", Text: "The quick brown fox jumps over the lazy dog", Score: 0.9},
		{ChunkID: "b", Text: "The quick brown fox jumps over the lazy dog!", Score: 0.8},
		{ChunkID: "c", Text: "Completely unrelated content about databases", Score: 0.7},
	}
	deduped := DeduplicateSources(sources)
	if len(deduped) != 2 {
		t.Fatalf("len(deduped) = %d, want 2: %+v", len(deduped), deduped)
	}
	if deduped[0].ChunkID != "a" {
		t.Errorf("expected highest-scoring representative 'a' kept first, got %s", deduped[0].ChunkID)
	}
}

func TestMerge_OnlySpeculative(t *testing.T) {
	spec := &PathResult{Text: "spec answer", Confidence: 0.6}
	result := Merge(spec, nil)
	if result.Text != "spec answer" || result.Confidence != 0.6 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestMerge_OnlyAgentic(t *testing.T) {
	agentic := &PathResult{Text: "agentic answer", Confidence: 0.75}
	result := Merge(nil, agentic)
	if result.Text != "agentic answer" || result.Confidence != 0.75 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestMerge_BothPresentPrefersAgentic(t *testing.T) {
	spec := &PathResult{Text: "spec answer", Confidence: 0.9}
	agentic := &PathResult{Text: "agentic answer", Confidence: 0.5}
	result := Merge(spec, agentic)
	if result.Text != "agentic answer" || result.Confidence != 0.5 {
		t.Errorf("expected agentic text/confidence even when speculative scores higher, got %+v", result)
	}
}

func TestMerge_NeitherPresent(t *testing.T) {
	result := Merge(nil, nil)
	if result.Text != BothPathsFailedMessage {
		t.Errorf("Text = %q, want fixed diagnostic message", result.Text)
	}
	if result.Confidence != 0.0 {
		t.Errorf("Confidence = %f, want 0.0", result.Confidence)
	}
}

func TestMerge_AgenticPlaceholderTreatedAsAbsent(t *testing.T) {
	spec := &PathResult{Text: "spec answer", Confidence: 0.6}
	agentic := &PathResult{Text: "Analysis in progress", Confidence: 0.9}
	result := Merge(spec, agentic)
	if result.Text != "spec answer" {
		t.Errorf("expected fallback to speculative text when agentic is a placeholder, got %+v", result)
	}
}

func TestStoreVersionAndDetectChanges(t *testing.T) {
	c := New(zerolog.Nop())

	v1 := c.StoreVersion("q1", model.PathSpeculative, "The capital of France is Paris.", 0.6,
		[]model.Source{{ChunkID: "a"}, {ChunkID: "b"}})
	v2 := c.StoreVersion("q1", model.PathAgentic, "The capital of France is Paris, a major European city.", 0.85,
		[]model.Source{{ChunkID: "b"}, {ChunkID: "c"}})

	versions := c.GetVersions("q1")
	if len(versions) != 2 {
		t.Fatalf("len(versions) = %d, want 2", len(versions))
	}

	diff := DetectChanges(v1, v2)
	if diff.ConfidenceDelta <= 0 || !diff.ConfidenceImproved {
		t.Errorf("expected confidence improvement, got %+v", diff)
	}
	if len(diff.SourcesAdded) != 1 || diff.SourcesAdded[0] != "c" {
		t.Errorf("SourcesAdded = %v, want [c]", diff.SourcesAdded)
	}
	if len(diff.SourcesRemoved) != 1 || diff.SourcesRemoved[0] != "a" {
		t.Errorf("SourcesRemoved = %v, want [a]", diff.SourcesRemoved)
	}
	if diff.Similarity <= 0 {
		t.Error("expected nonzero similarity between near-identical sentences")
	}
}

func TestDetectChanges_ContentChangedFlag(t *testing.T) {
	v1 := model.ResponseVersion{Content: "abc", Confidence: 0.5}
	v2 := model.ResponseVersion{Content: "completely different text entirely", Confidence: 0.5}
	diff := DetectChanges(v1, v2)
	if !diff.ContentChanged {
		t.Error("expected ContentChanged=true for dissimilar content")
	}
}
