// Package speculative implements C4: a single-shot retrieval + short
// LLM generation leg with a hard deadline, ported from
// original_source/backend/services/speculative_processor.py.
package speculative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/cache"
	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
	"github.com/hybridrag/queryengine/internal/query/retrieval"
)

// Params carries the per-invocation request.
type Params struct {
	Query       string
	SessionID   string
	TopK        int
	EnableCache bool
	Deadline    time.Duration
}

const (
	maxContextDocs    = 3
	maxCharsPerDoc    = 300
	minContextRelevance = 0.6
	maxRecentMessages = 5
	maxMessageChars   = 150
	fastMaxTokens     = 150
	fastTemperature   = 0.3
)

// Path is C4.
type Path struct {
	fusion  *retrieval.Fusion
	llm     ports.LLM
	session ports.SessionStore
	cache   *cache.Cache
	embed   ports.Embedding
	logger  zerolog.Logger
}

// New builds a speculative Path. session and cacheLayer may be nil
// (disables STM context and caching respectively, but the path never
// fails because of their absence).
func New(fusion *retrieval.Fusion, llm ports.LLM, session ports.SessionStore, cacheLayer *cache.Cache, embed ports.Embedding, logger zerolog.Logger) *Path {
	return &Path{fusion: fusion, llm: llm, session: session, cache: cacheLayer, embed: embed, logger: logger.With().Str("component", "speculative").Logger()}
}

// Process runs the speculative path end to end. It never returns an
// error: any internal failure is folded into a low-confidence
// SpeculativeResponse per spec.md §4.4's failure semantics.
func (p *Path) Process(ctx context.Context, params Params) model.SpeculativeResponse {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, params.Deadline)
	defer cancel()

	queryEmbedding, _ := p.tryEmbed(ctx, params.Query)

	if params.EnableCache && p.cache != nil {
		if hit, ok := p.cache.Get(ctx, params.Query, params.TopK, queryEmbedding); ok {
			resp := hit.Response
			resp.CacheHit = true
			resp.CacheMatchType = string(hit.MatchType)
			resp.Confidence = clamp01(resp.Confidence * 1.05)
			if resp.Metadata == nil {
				resp.Metadata = map[string]interface{}{}
			}
			resp.Metadata["cache_similarity"] = hit.Similarity
			p.saveToSession(ctx, params.SessionID, params.Query, resp.Text, resp)
			return resp
		}
	}

	retrievalDeadline := params.Deadline / 2
	retrievalCtx, retrievalCancel := context.WithTimeout(ctx, retrievalDeadline)
	sources, method, err := p.fusion.Retrieve(retrievalCtx, params.Query, params.TopK, false)
	retrievalCancel()
	if err != nil {
		p.logger.Warn().Err(err).Msg("retrieval failed in speculative path")
	}

	metadata := map[string]interface{}{"search_method": string(method)}

	var text string
	if len(sources) == 0 {
		text = "No relevant documents found. Performing deeper search for more comprehensive results..."
	} else {
		genStart := time.Now()
		var fellBack, timedOut bool
		text, fellBack, timedOut = p.generate(ctx, params, sources)
		metadata["llm_time_ms"] = time.Since(genStart).Milliseconds()
		if fellBack {
			metadata["llm_fallback"] = true
		}
		if timedOut {
			metadata["timeout"] = true
		}
	}

	confidence := confidenceScore(sources, false)
	resp := model.SpeculativeResponse{
		Text:           text,
		Confidence:     confidence,
		Sources:        sources,
		CacheHit:       false,
		ProcessingTime: time.Since(start),
		Metadata:       metadata,
	}

	if params.EnableCache && p.cache != nil {
		p.cache.Set(ctx, params.Query, params.TopK, resp, queryEmbedding)
	}

	p.saveToSession(ctx, params.SessionID, params.Query, text, resp)
	return resp
}

func (p *Path) tryEmbed(ctx context.Context, query string) ([]float32, error) {
	if p.embed == nil {
		return nil, nil
	}
	vec, err := p.embed.Embed(ctx, query)
	if err != nil {
		p.logger.Warn().Err(err).Msg("embedding failed, semantic cache lookup skipped")
		return nil, err
	}
	return vec, nil
}

// confidenceScore implements spec.md §4.4 step 6:
// clamp(0.7*avg_score + 0.3*min(n/5,1), 0, 1). When cacheHit is true
// the score is also multiplied by 1.05 before clamping; Process passes
// false and applies the 1.05x boost to a cached response itself.
func confidenceScore(sources []model.Source, cacheHit bool) float64 {
	if len(sources) == 0 {
		return 0.1
	}
	var sum float64
	for _, s := range sources {
		sum += s.Score
	}
	avg := sum / float64(len(sources))
	countFactor := float64(len(sources)) / 5.0
	if countFactor > 1 {
		countFactor = 1
	}
	score := 0.7*avg + 0.3*countFactor
	if cacheHit {
		score *= 1.05
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// generate builds the compact prompt (system instruction, truncated
// conversation context, truncated top sources, query) and calls the
// LLM with a sub-deadline, falling back to a raw-document excerpt on
// timeout or failure per spec.md §4.4 step 5. fellBack reports whether
// the fallback was used at all; timedOut narrows that to the
// ctx-deadline-exceeded case specifically, per spec.md §7's
// llm_unavailable/timeout distinction.
func (p *Path) generate(ctx context.Context, params Params, sources []model.Source) (text string, fellBack bool, timedOut bool) {
	conversation := p.loadContext(ctx, params.SessionID)

	docs := filterByRelevance(sources, minContextRelevance, maxContextDocs)
	contextBlock := buildContextBlock(docs)

	systemPrompt := "You are a fast-response assistant. Answer concisely using only the provided context. If the context is insufficient, say so briefly."
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, params.Query)
	if conversation != "" {
		userPrompt = conversation + "\n\n" + userPrompt
	}

	req := ports.GenerateRequest{
		Messages: []ports.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: fastTemperature,
		MaxTokens:   fastMaxTokens,
	}

	reply, err := p.llm.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Warn().Msg("LLM generation timed out in speculative path, using raw-document fallback")
			return rawDocumentFallback(sources), true, true
		}
		p.logger.Warn().Err(err).Msg("LLM generation failed in speculative path, using raw-document fallback")
		return rawDocumentFallback(sources), true, false
	}
	return reply, false, false
}

func (p *Path) loadContext(ctx context.Context, sessionID string) string {
	if p.session == nil || sessionID == "" {
		return ""
	}
	messages, err := p.session.Recent(ctx, sessionID, maxRecentMessages)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to load conversation context")
		return ""
	}

	var b strings.Builder
	for _, m := range messages {
		content := m.Content
		if len(content) > maxMessageChars {
			content = content[:maxMessageChars]
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}

func (p *Path) saveToSession(ctx context.Context, sessionID, query, response string, resp model.SpeculativeResponse) {
	if p.session == nil || sessionID == "" {
		return
	}
	if err := p.session.Append(ctx, sessionID, "user", query, map[string]string{"path": "speculative"}); err != nil {
		p.logger.Warn().Err(err).Msg("failed to append user message to session")
	}
	meta := map[string]string{
		"path":            "speculative",
		"confidence":      fmt.Sprintf("%.3f", resp.Confidence),
		"cache_hit":       fmt.Sprintf("%t", resp.CacheHit),
	}
	if err := p.session.Append(ctx, sessionID, "assistant", response, meta); err != nil {
		p.logger.Warn().Err(err).Msg("failed to append assistant message to session")
	}
}

func filterByRelevance(sources []model.Source, minScore float64, maxDocs int) []model.Source {
	var filtered []model.Source
	for _, s := range sources {
		if s.Score >= minScore {
			filtered = append(filtered, s)
		}
		if len(filtered) >= maxDocs {
			break
		}
	}
	if len(filtered) == 0 && len(sources) > 0 {
		// Nothing cleared the relevance bar; fall back to the top
		// maxDocs results so the prompt is never empty when evidence exists.
		end := maxDocs
		if end > len(sources) {
			end = len(sources)
		}
		filtered = sources[:end]
	}
	return filtered
}

func buildContextBlock(sources []model.Source) string {
	if len(sources) == 0 {
		return "No relevant documents found."
	}
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		text := s.Text
		if len(text) > maxCharsPerDoc {
			text = text[:maxCharsPerDoc]
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// rawDocumentFallback formats the top retrieved sources as a
// synthesis-free excerpt, per spec.md §4.4 step 5's "raw-document
// fallback" and ported from _format_raw_documents_fallback.
func rawDocumentFallback(sources []model.Source) string {
	if len(sources) == 0 {
		return "I found no relevant documents for your query. Please try rephrasing your question."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d relevant document(s) for your query. Here are the key excerpts:\n", len(sources))

	top := sources
	if len(top) > 3 {
		top = top[:3]
	}
	for i, s := range top {
		text := s.Text
		suffix := ""
		if len(text) > maxCharsPerDoc {
			text = text[:maxCharsPerDoc]
			suffix = "..."
		}
		fmt.Fprintf(&b, "\n%d. From '%s' (relevance: %.2f):\n%s%s", i+1, s.DocumentName, s.Score, text, suffix)
	}
	b.WriteString("\n\nNote: this is a direct excerpt from the documents. For a synthesized answer, please try again in a moment.")
	return b.String()
}
