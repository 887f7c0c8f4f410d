// Package coordinator implements C6: source deduplication, response
// merging, and version/delta tracking across a query's lifetime.
// Ported from
// original_source/backend/services/response_coordinator.py's
// _merge_responses/store_version/get_versions/detect_changes, with the
// source's difflib.SequenceMatcher similarity replaced throughout by
// the normalized LCS ratio (textsim.Ratio) spec.md mandates.
package coordinator

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/textsim"
)

// BothPathsFailedMessage is the fixed diagnostic text emitted when
// neither the speculative nor the agentic path produced a usable
// result, per spec.md §7's both_paths_failed determinism requirement.
const BothPathsFailedMessage = "I wasn't able to find or generate an answer to your question right now. Please try rephrasing it or try again shortly."

// agenticPlaceholders lists known agentic placeholder texts that must
// be treated as absent rather than as a real answer, per spec.md
// §4.6's "known placeholder" carve-out.
var agenticPlaceholders = map[string]bool{
	"analysis in progress":       true,
	"processing your request":    true,
	"still gathering information": true,
}

// DedupThreshold is the text-similarity floor above which two sources
// are considered duplicates, per spec.md §4.6.
const DedupThreshold = 0.85

// MergeThreshold is the text-similarity floor above which the
// speculative and agentic answers are considered the "same" answer,
// preferring the agentic text, per spec.md §4.6's merge table.
const MergeThreshold = 0.8

// ConfidenceMargin is the minimum confidence gap (agentic over
// speculative) that alone justifies preferring the agentic answer.
const ConfidenceMargin = 0.15

// PathResult is one path's contribution to a merge: absent paths are
// represented by a nil pointer rather than a zero-value struct.
type PathResult struct {
	Text       string
	Confidence float64
	Sources    []model.Source
}

// MergeResult is C6's merged output.
type MergeResult struct {
	Text       string
	Confidence float64
	Sources    []model.Source
}

// Coordinator is C6.
type Coordinator struct {
	mu       sync.Mutex
	versions map[string][]model.ResponseVersion
	logger   zerolog.Logger
}

// New builds a Coordinator.
func New(logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		versions: make(map[string][]model.ResponseVersion),
		logger:   logger.With().Str("component", "coordinator").Logger(),
	}
}

// DeduplicateSources implements spec.md §4.6's source deduplication:
// sort by score descending, then keep the first representative of
// each similarity cluster (chunk_id equality or LCS ratio >= 0.85).
func DeduplicateSources(sources []model.Source) []model.Source {
	ordered := make([]model.Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	kept := make([]model.Source, 0, len(ordered))
	seenIDs := make(map[string]bool, len(ordered))

	for _, s := range ordered {
		if seenIDs[s.ChunkID] {
			continue
		}
		duplicate := false
		for _, k := range kept {
			if textsim.Equivalent(s.Text, k.Text, DedupThreshold) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, s)
		seenIDs[s.ChunkID] = true
	}
	return kept
}

// Merge implements spec.md §4.6's response-merging table. Either
// result may be nil, meaning that path produced nothing usable.
func Merge(speculative, agentic *PathResult) MergeResult {
	agentic = normalizePlaceholder(agentic)

	switch {
	case speculative == nil && agentic == nil:
		return MergeResult{Text: BothPathsFailedMessage, Confidence: 0.0}
	case speculative == nil:
		return MergeResult{Text: agentic.Text, Confidence: agentic.Confidence, Sources: agentic.Sources}
	case agentic == nil:
		return MergeResult{Text: speculative.Text, Confidence: speculative.Confidence, Sources: speculative.Sources}
	}

	merged := DeduplicateSources(append(append([]model.Source{}, speculative.Sources...), agentic.Sources...))
	return MergeResult{Text: agentic.Text, Confidence: agentic.Confidence, Sources: merged}
}

func normalizePlaceholder(r *PathResult) *PathResult {
	if r == nil {
		return nil
	}
	if agenticPlaceholders[normalizeKey(r.Text)] {
		return nil
	}
	return r
}

func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// StoreVersion appends a new ResponseVersion to queryID's version
// history and returns it.
func (c *Coordinator) StoreVersion(queryID string, pathSource model.PathSource, content string, confidence float64, sources []model.Source) model.ResponseVersion {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := model.ResponseVersion{
		VersionID:  uuid.NewString(),
		Content:    content,
		PathSource: pathSource,
		Confidence: confidence,
		Sources:    sources,
	}
	c.versions[queryID] = append(c.versions[queryID], v)
	return v
}

// GetVersions returns queryID's version history in commit order.
func (c *Coordinator) GetVersions(queryID string) []model.ResponseVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ResponseVersion{}, c.versions[queryID]...)
}

// DetectChanges implements spec.md §4.6's diff(v_i, v_j).
func DetectChanges(vi, vj model.ResponseVersion) model.VersionDiff {
	similarity := textsim.Ratio(vi.Content, vj.Content)

	idsI := sourceIDSet(vi.Sources)
	idsJ := sourceIDSet(vj.Sources)

	var added, removed []string
	for id := range idsJ {
		if !idsI[id] {
			added = append(added, id)
		}
	}
	for id := range idsI {
		if !idsJ[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	delta := vj.Confidence - vi.Confidence

	return model.VersionDiff{
		Similarity:         similarity,
		ConfidenceDelta:    delta,
		ConfidenceImproved: delta > 0,
		SourcesAdded:       added,
		SourcesRemoved:     removed,
		ContentChanged:     similarity < 0.95,
	}
}

func sourceIDSet(sources []model.Source) map[string]bool {
	set := make(map[string]bool, len(sources))
	for _, s := range sources {
		set[s.ChunkID] = true
	}
	return set
}
