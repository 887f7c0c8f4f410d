// Package router implements C7: the single entry point that dispatches
// a query to C1/C4/C5/C6 according to mode and streams back
// ResponseChunks. Ported from
// original_source/backend/services/hybrid_query_router.py's
// process_query/_process_fast_mode/_process_deep_mode/
// _process_balanced_mode/_process_web_search_mode.
package router

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/agentic"
	"github.com/hybridrag/queryengine/internal/query/complexity"
	"github.com/hybridrag/queryengine/internal/query/coordinator"
	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/speculative"
	"github.com/hybridrag/queryengine/internal/ratelimit"
)

// Mode deadlines, per spec.md §4.4/§4.5/§5.
const (
	fastDeadline          = 1 * time.Second
	balancedSpecDeadline  = 3 * time.Second
	balancedAgenticDeadline = 30 * time.Second
	deepDeadline          = 30 * time.Second
	webSearchDeadline     = 30 * time.Second

	fastTopK     = 5
	balancedTopK = 10
	deepTopK     = 15

	balancedAgenticMaxSteps = 10
	deepMaxSteps            = 15
	webSearchMaxSteps       = 10

	streamBufferSize = 8
)

// Router is C7.
type Router struct {
	speculative *speculative.Path
	agentic     *agentic.Path
	coordinator *coordinator.Coordinator
	limiter     *ratelimit.Limiter
	logger      zerolog.Logger
}

// New builds a Router.
func New(spec *speculative.Path, agent *agentic.Path, coord *coordinator.Coordinator, limiter *ratelimit.Limiter, logger zerolog.Logger) *Router {
	return &Router{
		speculative: spec,
		agentic:     agent,
		coordinator: coord,
		limiter:     limiter,
		logger:      logger.With().Str("component", "router").Logger(),
	}
}

// ProcessQuery is C7's single entry point. The returned channel yields
// zero or more PRELIMINARY/REFINEMENT chunks followed by exactly one
// FINAL chunk, then closes.
func (r *Router) ProcessQuery(ctx context.Context, q model.Query, callerKey string) <-chan model.ResponseChunk {
	out := make(chan model.ResponseChunk, streamBufferSize)

	if q.Text == "" {
		go func() {
			defer close(out)
			out <- finalChunk(nextChunkID(), model.PathHybrid, "Please provide a non-empty query.", ptr(0.0), nil, "invalid_input", nil)
		}()
		return out
	}

	if r.limiter != nil && !r.limiter.Allow(callerKey) {
		go func() {
			defer close(out)
			out <- finalChunk(nextChunkID(), model.PathHybrid, "Rate limit exceeded. Please slow down and try again shortly.", ptr(0.0), nil, "rate_limited", nil)
		}()
		return out
	}

	go func() {
		defer close(out)
		r.dispatch(ctx, q, out)
	}()

	return out
}

func (r *Router) dispatch(ctx context.Context, q model.Query, out chan<- model.ResponseChunk) {
	mode := q.Mode
	var complexityMeta map[string]interface{}

	if mode == model.ModeAuto || mode == "" {
		score := complexity.Analyze(q.Text)
		mode = score.RecommendedMode
		complexityMeta = map[string]interface{}{
			"complexity":       string(score.Level),
			"complexity_score": score.Composite,
		}
	}

	switch mode {
	case model.ModeFast:
		r.runFast(ctx, q, out, complexityMeta)
	case model.ModeDeep:
		r.runDeep(ctx, q, out, complexityMeta, false)
	case model.ModeWebSearch:
		r.runDeep(ctx, q, out, complexityMeta, true)
	case model.ModeBalanced:
		r.runBalanced(ctx, q, out, complexityMeta)
	default:
		r.runBalanced(ctx, q, out, complexityMeta)
	}
}

func (r *Router) runFast(ctx context.Context, q model.Query, out chan<- model.ResponseChunk, meta map[string]interface{}) {
	deadline := firstPositive(q.SpeculativeTimeout, fastDeadline)
	topK := firstPositiveInt(q.TopK, fastTopK)

	resp := r.speculative.Process(ctx, speculative.Params{
		Query: q.Text, SessionID: q.SessionID, TopK: topK,
		EnableCache: q.EnableCache, Deadline: deadline,
	})

	m := withFallbackMeta(mergeMeta(meta, map[string]interface{}{
		"mode_used":        string(model.ModeFast),
		"cache_hit":        resp.CacheHit,
		"cache_match_type": resp.CacheMatchType,
		"processing_time":  resp.ProcessingTime.Seconds(),
	}), resp.Metadata)
	r.storeVersion(q, model.PathSpeculative, resp.Text, resp.Confidence, resp.Sources)
	send(out, finalChunk(nextChunkID(), model.PathSpeculative, resp.Text, ptr(resp.Confidence), resp.Sources, "", m))
}

// storeVersion records the committed FINAL text as a new version in
// C6, keyed by session where available, per spec.md §4.6's versioning
// contract. A no-op when the router was built without a coordinator.
func (r *Router) storeVersion(q model.Query, pathSource model.PathSource, text string, confidence float64, sources []model.Source) {
	if r.coordinator == nil {
		return
	}
	queryID := q.SessionID
	if queryID == "" {
		queryID = q.Text
	}
	r.coordinator.StoreVersion(queryID, pathSource, text, confidence, sources)
}

func (r *Router) runDeep(ctx context.Context, q model.Query, out chan<- model.ResponseChunk, meta map[string]interface{}, webSearch bool) {
	deadline := firstPositive(q.AgenticTimeout, deepDeadline)
	topK := firstPositiveInt(q.TopK, deepTopK)

	pathSource := model.PathAgentic
	maxSteps := deepMaxSteps
	if webSearch {
		pathSource = model.PathWebSearch
		deadline = webSearchDeadline
		maxSteps = webSearchMaxSteps
	}

	steps := r.agentic.Process(ctx, agentic.Params{
		Query: q.Text, SessionID: q.SessionID, TopK: topK,
		Deadline: deadline, MaxSteps: maxSteps, WebSearchEnabled: webSearch,
	})

	var last model.ReasoningStep
	for step := range steps {
		last = step
		if step.Type == model.StepResponse {
			break
		}
		send(out, model.ResponseChunk{
			ChunkID:        nextChunkID(),
			Type:           model.ResponseRefinement,
			PathSource:     pathSource,
			Content:        step.Content,
			Sources:        nil,
			ReasoningSteps: []model.ReasoningStep{step},
			Timestamp:      time.Now(),
			Metadata:       mergeMeta(meta, map[string]interface{}{"mode_used": string(modeForDeep(webSearch)), "step_type": string(step.Type)}),
		})
	}

	sources, _ := last.Metadata["sources"].([]model.Source)
	partial, _ := last.Metadata["partial_results"].(bool)
	m := mergeMeta(meta, map[string]interface{}{
		"mode_used": string(modeForDeep(webSearch)),
		"timeout":   partial,
	})
	confidence := 0.6
	if partial {
		confidence = 0.3
	}
	r.storeVersion(q, pathSource, last.Content, confidence, sources)
	send(out, finalChunk(nextChunkID(), pathSource, last.Content, ptr(confidence), sources, "", m))
}

func modeForDeep(webSearch bool) model.QueryMode {
	if webSearch {
		return model.ModeWebSearch
	}
	return model.ModeDeep
}

// runBalanced dispatches C4 and C5 concurrently via errgroup, streams
// C4's result as PRELIMINARY as soon as it's ready, streams C5's
// intermediate steps as REFINEMENT, then asks C6 to merge both final
// answers into one FINAL chunk. Confidence on FINAL is guaranteed to
// be >= the PRELIMINARY confidence whenever both legs succeeded.
func (r *Router) runBalanced(ctx context.Context, q model.Query, out chan<- model.ResponseChunk, meta map[string]interface{}) {
	specDeadline := firstPositive(q.SpeculativeTimeout, balancedSpecDeadline)
	agenticDeadline := firstPositive(q.AgenticTimeout, balancedAgenticDeadline)
	topK := firstPositiveInt(q.TopK, balancedTopK)

	var specResult *coordinator.PathResult
	var agenticResult *coordinator.PathResult
	var preliminaryConfidence float64

	// preliminarySent gates emission, not execution: both legs run
	// concurrently, but the agentic leg buffers its chunks locally and
	// only replays them once the PRELIMINARY chunk has gone out, per
	// spec.md §5's ordering guarantee. Mirrors the original's
	// _coordinate_balanced_streaming, which awaits the speculative task
	// before replaying the already-collected agentic steps.
	preliminarySent := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resp := r.speculative.Process(gctx, speculative.Params{
			Query: q.Text, SessionID: q.SessionID, TopK: topK,
			EnableCache: q.EnableCache, Deadline: specDeadline,
		})
		specResult = &coordinator.PathResult{Text: resp.Text, Confidence: resp.Confidence, Sources: resp.Sources}
		preliminaryConfidence = resp.Confidence
		send(out, model.ResponseChunk{
			ChunkID:    nextChunkID(),
			Type:       model.ResponsePreliminary,
			PathSource: model.PathSpeculative,
			Content:    resp.Text,
			Confidence: ptr(resp.Confidence),
			Sources:    resp.Sources,
			Timestamp:  time.Now(),
			Metadata:   withFallbackMeta(mergeMeta(meta, map[string]interface{}{"mode_used": string(model.ModeBalanced), "cache_hit": resp.CacheHit}), resp.Metadata),
		})
		close(preliminarySent)
		return nil
	})

	g.Go(func() error {
		steps := r.agentic.Process(gctx, agentic.Params{
			Query: q.Text, SessionID: q.SessionID, TopK: topK,
			Deadline: agenticDeadline, MaxSteps: balancedAgenticMaxSteps,
		})
		var last model.ReasoningStep
		var buffered []model.ResponseChunk
		for step := range steps {
			last = step
			if step.Type == model.StepResponse {
				break
			}
			buffered = append(buffered, model.ResponseChunk{
				Type:           model.ResponseRefinement,
				PathSource:     model.PathAgentic,
				Content:        step.Content,
				ReasoningSteps: []model.ReasoningStep{step},
				Metadata:       mergeMeta(meta, map[string]interface{}{"mode_used": string(model.ModeBalanced), "step_type": string(step.Type)}),
			})
			select {
			case <-preliminarySent:
				for i := range buffered {
					buffered[i].ChunkID = nextChunkID()
					buffered[i].Timestamp = time.Now()
					send(out, buffered[i])
				}
				buffered = buffered[:0]
			default:
			}
		}

		<-preliminarySent
		for i := range buffered {
			buffered[i].ChunkID = nextChunkID()
			buffered[i].Timestamp = time.Now()
			send(out, buffered[i])
		}

		if last.Type == model.StepResponse {
			sources, _ := last.Metadata["sources"].([]model.Source)
			agenticResult = &coordinator.PathResult{Text: last.Content, Confidence: confidenceFromStep(last), Sources: sources}
		}
		return nil
	})

	_ = g.Wait()

	merged := coordinator.Merge(specResult, agenticResult)
	if merged.Confidence < preliminaryConfidence && specResult != nil && agenticResult != nil {
		merged.Confidence = preliminaryConfidence
	}

	m := mergeMeta(meta, map[string]interface{}{"mode_used": string(model.ModeBalanced)})
	r.storeVersion(q, model.PathHybrid, merged.Text, merged.Confidence, merged.Sources)
	send(out, finalChunk(nextChunkID(), model.PathHybrid, merged.Text, ptr(merged.Confidence), merged.Sources, "", m))
}

func confidenceFromStep(step model.ReasoningStep) float64 {
	if partial, _ := step.Metadata["partial_results"].(bool); partial {
		return 0.3
	}
	return 0.6
}

func finalChunk(chunkID string, pathSource model.PathSource, content string, confidence *float64, sources []model.Source, errKind string, metadata map[string]interface{}) model.ResponseChunk {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if errKind != "" {
		metadata["error"] = errKind
	}
	return model.ResponseChunk{
		ChunkID:    chunkID,
		Type:       model.ResponseFinal,
		PathSource: pathSource,
		Content:    content,
		Confidence: confidence,
		Sources:    sources,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// withFallbackMeta copies the speculative path's llm_fallback/timeout
// flags (set only when generate() degraded to the raw-document
// fallback) onto the router's own metadata, per spec.md §7's error
// table for the FAST and BALANCED legs.
func withFallbackMeta(m, respMeta map[string]interface{}) map[string]interface{} {
	if v, ok := respMeta["llm_fallback"]; ok {
		m["llm_fallback"] = v
	}
	if v, ok := respMeta["timeout"]; ok {
		m["timeout"] = v
	}
	return m
}

func mergeMeta(base, extra map[string]interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func send(out chan<- model.ResponseChunk, c model.ResponseChunk) {
	out <- c
}

func ptr(v float64) *float64 { return &v }

func firstPositive(d time.Duration, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func firstPositiveInt(n int, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

var chunkCounter uint64

// nextChunkID produces a monotonically increasing chunk identifier per
// spec.md §5's ordering guarantee. A process-wide counter is
// sufficient here since each query's chunks are emitted by a single
// goroutine tree and interleaving across queries is permitted by the
// spec (only within-stream ordering is required).
func nextChunkID() string {
	n := atomic.AddUint64(&chunkCounter, 1)
	return fmt.Sprintf("chunk_%06d", n)
}
