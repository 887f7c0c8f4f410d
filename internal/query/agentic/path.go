// Package agentic implements C5: a plan/act/observe/decide/reflect
// state machine that yields a trace of ReasoningSteps terminating in
// exactly one response step. The transition diagram is authored
// directly from spec.md §4.5 since no surviving aggregator
// implementation exists in original_source; the internal working-state
// shape is restored from original_source/backend/models/agent.py's
// AgentState/AgentStep.
package agentic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
	"github.com/hybridrag/queryengine/internal/query/retrieval"
)

// Params parameterizes one run of the agentic path, per spec.md §4.5's
// mode-specific parameter table.
type Params struct {
	Query             string
	SessionID         string
	TopK              int
	Deadline          time.Duration
	MaxSteps          int
	WebSearchEnabled  bool
}

const (
	defaultMaxSteps       = 15
	evidenceDocThreshold  = 4
	evidenceScoreThreshold = 0.65
)

// Path is C5.
type Path struct {
	fusion    *retrieval.Fusion
	llm       ports.LLM
	webSearch ports.WebSearch
	logger    zerolog.Logger
}

// New builds an agentic Path. webSearch may be nil; a request with
// WebSearchEnabled set but a nil port simply skips that tool.
func New(fusion *retrieval.Fusion, llm ports.LLM, webSearch ports.WebSearch, logger zerolog.Logger) *Path {
	return &Path{fusion: fusion, llm: llm, webSearch: webSearch, logger: logger.With().Str("component", "agentic").Logger()}
}

// Process runs the state machine and returns a channel that yields
// ReasoningSteps in production order. The channel is closed after the
// terminal `response` step is sent (or, on context cancellation before
// that point, without a terminal step, per spec.md §4's cancellation
// semantics: no FINAL to a closed stream).
func (p *Path) Process(ctx context.Context, params Params) <-chan model.ReasoningStep {
	out := make(chan model.ReasoningStep, 4)

	maxSteps := params.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, params.Deadline)
		defer cancel()

		state := &model.AgentState{Query: params.Query, SessionID: params.SessionID}

		planningStep := p.step(model.StepPlanning, planSummary(params.Query, params.WebSearchEnabled), nil)
		state.PlanningSteps = append(state.PlanningSteps, planningStep.Content)
		if !send(ctx, out, planningStep) {
			return
		}

		for cycle := 1; cycle <= maxSteps; cycle++ {
			if ctx.Err() != nil {
				p.emitTimeout(ctx, out, state, cycle, maxSteps)
				return
			}

			action, docs, actionErr := p.act(ctx, params, state, cycle)
			state.ActionHistory = append(state.ActionHistory, action.Content)
			if !send(ctx, out, action) {
				return
			}

			observation := p.observe(docs, actionErr)
			state.ReasoningSteps = append(state.ReasoningSteps, observation)
			if !send(ctx, out, observation) {
				return
			}
			state.RetrievedDocs = mergeSources(state.RetrievedDocs, docs)

			enough := decide(state.RetrievedDocs, cycle, maxSteps)
			if enough {
				p.respond(ctx, out, state, false)
				return
			}

			if cycle < maxSteps {
				reflection := p.reflect(state, cycle)
				state.ReflectionDecision = reflection.Content
				if !send(ctx, out, reflection) {
					return
				}
			}
		}

		p.respond(ctx, out, state, false)
	}()

	return out
}

func (p *Path) step(t model.ReasoningStepType, content string, metadata map[string]interface{}) model.ReasoningStep {
	return model.ReasoningStep{
		StepID:    uuid.NewString(),
		Type:      t,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

func send(ctx context.Context, out chan<- model.ReasoningStep, s model.ReasoningStep) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

func planSummary(query string, webSearch bool) string {
	if webSearch {
		return fmt.Sprintf("Plan: retrieve supporting evidence for %q via hybrid search and web search, then synthesize an answer.", query)
	}
	return fmt.Sprintf("Plan: retrieve supporting evidence for %q via hybrid search, then synthesize an answer.", query)
}

// act performs one ACTING transition: a retrieval call (and, when
// enabled, a web search call) described as a tool invocation.
func (p *Path) act(ctx context.Context, params Params, state *model.AgentState, cycle int) (model.ReasoningStep, []model.Source, error) {
	var tool string
	var docs []model.Source
	var err error

	if params.WebSearchEnabled && p.webSearch != nil && cycle > 1 {
		tool = "web_search"
		docs, err = p.webSearch.Search(ctx, refineQuery(params.Query, state, cycle), params.TopK)
		for i := range docs {
			if docs[i].Metadata == nil {
				docs[i].Metadata = map[string]string{}
			}
			docs[i].Metadata["tool"] = "web_search"
		}
	} else {
		tool = "hybrid_retrieval"
		var method retrieval.Method
		docs, method, err = p.fusion.Retrieve(ctx, refineQuery(params.Query, state, cycle), params.TopK, false)
		for i := range docs {
			if docs[i].Metadata == nil {
				docs[i].Metadata = map[string]string{}
			}
			docs[i].Metadata["tool"] = string(method)
		}
	}

	content := fmt.Sprintf("Invoking %s (cycle %d) for query context.", tool, cycle)
	if err != nil {
		content = fmt.Sprintf("Invoking %s (cycle %d) failed: %v", tool, cycle, err)
	}
	meta := map[string]interface{}{"tool": tool, "cycle": cycle}
	return p.step(model.StepAction, content, meta), docs, err
}

func refineQuery(query string, state *model.AgentState, cycle int) string {
	if cycle == 1 {
		return query
	}
	return query
}

func (p *Path) observe(docs []model.Source, actionErr error) model.ReasoningStep {
	var content string
	meta := map[string]interface{}{"doc_count": len(docs)}
	if actionErr != nil {
		content = fmt.Sprintf("Tool invocation produced no usable results (%v).", actionErr)
	} else if len(docs) == 0 {
		content = "No new evidence surfaced in this cycle."
	} else {
		content = fmt.Sprintf("Retrieved %d supporting document(s); top match scored %.2f.", len(docs), docs[0].Score)
	}
	return p.step(model.StepObservation, content, meta)
}

func (p *Path) reflect(state *model.AgentState, cycle int) model.ReasoningStep {
	content := fmt.Sprintf("Evidence gathered so far (%d sources) is insufficient; continuing with another retrieval cycle.", len(state.RetrievedDocs))
	return p.step(model.StepReflection, content, map[string]interface{}{"cycle": cycle})
}

// decide reports whether accumulated evidence is sufficient to
// respond, per spec.md §4.5's DECIDE transition; the step budget
// itself forces termination regardless of this verdict.
func decide(docs []model.Source, cycle, maxSteps int) bool {
	if cycle >= maxSteps {
		return true
	}
	if len(docs) < evidenceDocThreshold {
		return false
	}
	var sum float64
	for _, d := range docs {
		sum += d.Score
	}
	avg := sum / float64(len(docs))
	return avg >= evidenceScoreThreshold
}

func mergeSources(existing, fresh []model.Source) []model.Source {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.ChunkID] = true
	}
	merged := existing
	for _, s := range fresh {
		if !seen[s.ChunkID] {
			merged = append(merged, s)
			seen[s.ChunkID] = true
		}
	}
	return merged
}

// respond emits the terminal RESPONDED step. partial marks a
// deadline-forced termination (spec.md §4.5's timeout behavior).
func (p *Path) respond(ctx context.Context, out chan<- model.ReasoningStep, state *model.AgentState, partial bool) {
	text := p.synthesize(ctx, state, partial)
	partial = partial || ctx.Err() != nil
	state.FinalResponse = text

	meta := map[string]interface{}{
		"partial_results": partial,
		"sources":         state.RetrievedDocs,
		"cycles":          len(state.ActionHistory),
	}
	step := p.step(model.StepResponse, text, meta)
	send(context.Background(), out, step)
}

func (p *Path) emitTimeout(ctx context.Context, out chan<- model.ReasoningStep, state *model.AgentState, cycle, maxSteps int) {
	p.respond(ctx, out, state, true)
}

// synthesize builds the final answer from accumulated evidence. On a
// partial/expired deadline it composes directly from retrieved
// sources rather than risking another blocked LLM call.
func (p *Path) synthesize(ctx context.Context, state *model.AgentState, partial bool) string {
	if len(state.RetrievedDocs) == 0 {
		if partial {
			return "Unable to gather sufficient evidence before the deadline. Please try again or narrow the question."
		}
		return "No relevant evidence was found for this query after exhausting the reasoning budget."
	}

	if partial || p.llm == nil {
		return summarizeFromSources(state.RetrievedDocs, partial)
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	top := state.RetrievedDocs
	if len(top) > 5 {
		top = top[:5]
	}
	for _, s := range top {
		text := s.Text
		if len(text) > 400 {
			text = text[:400]
		}
		fmt.Fprintf(&b, "- %s\n", text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", state.Query)

	req := ports.GenerateRequest{
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "You are a careful research assistant. Synthesize a complete answer strictly from the provided context, citing evidence implicitly by restating it."},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.2,
		MaxTokens:   500,
	}

	text, err := p.llm.Generate(ctx, req)
	if err != nil {
		p.logger.Warn().Err(err).Msg("final synthesis failed, falling back to source summary")
		return summarizeFromSources(state.RetrievedDocs, false)
	}
	return text
}

func summarizeFromSources(docs []model.Source, partial bool) string {
	var b strings.Builder
	if partial {
		b.WriteString("Partial results (deadline reached before full synthesis):\n")
	} else {
		b.WriteString("Summary assembled from retrieved evidence:\n")
	}
	top := docs
	if len(top) > 3 {
		top = top[:3]
	}
	for i, s := range top {
		text := s.Text
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		fmt.Fprintf(&b, "\n%d. %s (score %.2f): %s", i+1, s.DocumentName, s.Score, text)
	}
	return b.String()
}
