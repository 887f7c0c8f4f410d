// Package retrieval implements C3: vector search optionally fused with
// lexical search via reciprocal rank fusion.
package retrieval

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
	"github.com/hybridrag/queryengine/internal/query/querytype"
)

// RRFK is the rank-fusion constant from spec.md's glossary: score =
// Σ 1/(k+rank).
const RRFK = 60

// Method reports which retrieval strategy actually produced a result set.
type Method string

const (
	MethodVector Method = "vector"
	MethodHybrid Method = "hybrid"
	MethodNone   Method = "none"
)

// Fusion is C3: it owns the vector/lexical ports and the RRF merge.
type Fusion struct {
	embedding ports.Embedding
	vector    ports.VectorIndex
	lexical   ports.LexicalIndex
	logger    zerolog.Logger
}

// New builds a Fusion retriever. lexical may be nil, which disables
// hybrid fusion entirely (vector-only per spec.md §4.3).
func New(embedding ports.Embedding, vector ports.VectorIndex, lexical ports.LexicalIndex, logger zerolog.Logger) *Fusion {
	return &Fusion{embedding: embedding, vector: vector, lexical: lexical, logger: logger.With().Str("component", "retrieval").Logger()}
}

// Retrieve runs vector search, and lexical search in parallel when the
// caller requests it or the query-type classifier recommends it,
// merging by reciprocal rank fusion. At most topK sources are
// returned, ordered by fused score descending.
func (f *Fusion) Retrieve(ctx context.Context, query string, topK int, forceHybrid bool) ([]model.Source, Method, error) {
	useHybrid := forceHybrid
	if !useHybrid && f.lexical != nil {
		useHybrid = querytype.Analyze(query).UseHybrid
	}
	if f.lexical == nil {
		useHybrid = false
	}

	if !useHybrid {
		sources, err := f.vectorSearch(ctx, query, topK)
		if err != nil {
			f.logger.Warn().Err(err).Msg("vector search failed and no lexical fallback available")
			return nil, MethodNone, nil
		}
		return limit(sources, topK), MethodVector, nil
	}

	candidateK := topK * 2
	var vectorHits, lexicalHits []model.Source
	var vectorErr, lexicalErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = f.vectorSearch(ctx, query, candidateK)
	}()
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = f.lexical.Search(ctx, query, candidateK)
	}()
	wg.Wait()

	switch {
	case vectorErr != nil && lexicalErr != nil:
		f.logger.Warn().Err(vectorErr).Msg("both vector and lexical retrieval failed")
		return nil, MethodNone, nil
	case vectorErr != nil:
		f.logger.Warn().Err(vectorErr).Msg("vector retrieval failed, using lexical only")
		return limit(lexicalHits, topK), MethodHybrid, nil
	case lexicalErr != nil:
		f.logger.Warn().Err(lexicalErr).Msg("lexical retrieval failed, using vector only")
		return limit(vectorHits, topK), MethodHybrid, nil
	}

	merged := ApplyRRF(vectorHits, lexicalHits, RRFK)
	return limit(merged, topK), MethodHybrid, nil
}

func (f *Fusion) vectorSearch(ctx context.Context, query string, topK int) ([]model.Source, error) {
	vec, err := f.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return f.vector.Search(ctx, vec, topK)
}

// ApplyRRF merges two ranked Source lists by reciprocal rank fusion,
// ported from the teacher's internal/kb/hybrid_search.go applyRRF
// (same k, same rank-based formula; unweighted here since spec.md's
// RRF does not specify per-source weighting).
func ApplyRRF(a, b []model.Source, k int) []model.Source {
	aRank := make(map[string]int, len(a))
	for i, s := range a {
		aRank[s.ChunkID] = i + 1
	}
	bRank := make(map[string]int, len(b))
	for i, s := range b {
		bRank[s.ChunkID] = i + 1
	}

	byID := make(map[string]model.Source, len(a)+len(b))
	for _, s := range a {
		byID[s.ChunkID] = s
	}
	for _, s := range b {
		if _, exists := byID[s.ChunkID]; !exists {
			byID[s.ChunkID] = s
		}
	}

	type scored struct {
		source model.Source
		score  float64
	}
	results := make([]scored, 0, len(byID))
	for id, src := range byID {
		var score float64
		if rank, ok := aRank[id]; ok {
			score += 1.0 / float64(k+rank)
		}
		if rank, ok := bRank[id]; ok {
			score += 1.0 / float64(k+rank)
		}
		src.Score = score
		results = append(results, scored{source: src, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].source.ChunkID < results[j].source.ChunkID
	})

	merged := make([]model.Source, len(results))
	for i, r := range results {
		merged[i] = r.source
	}
	return merged
}

func limit(sources []model.Source, topK int) []model.Source {
	if topK <= 0 || len(sources) <= topK {
		return sources
	}
	return sources[:topK]
}
