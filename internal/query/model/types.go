// Package model holds the data types shared across the query core:
// the tagged variants and record types spec.md §3 calls for in place
// of the source's dynamically-typed dictionaries.
package model

import "time"

// QueryMode is the caller-facing latency/quality selection. AUTO is a
// pre-dispatch value resolved by the complexity analyzer; it is never
// carried on an emitted chunk.
type QueryMode string

const (
	ModeAuto       QueryMode = "auto"
	ModeFast       QueryMode = "fast"
	ModeBalanced   QueryMode = "balanced"
	ModeDeep       QueryMode = "deep"
	ModeWebSearch  QueryMode = "web_search"
)

// ResponseType is the kind of chunk in a progressive stream.
type ResponseType string

const (
	ResponsePreliminary ResponseType = "preliminary"
	ResponseRefinement  ResponseType = "refinement"
	ResponseFinal       ResponseType = "final"
)

// PathSource identifies which path produced a response or chunk.
type PathSource string

const (
	PathSpeculative PathSource = "speculative"
	PathAgentic     PathSource = "agentic"
	PathHybrid      PathSource = "hybrid"
	PathWebSearch   PathSource = "web_search"
)

// ComplexityLevel classifies a query's estimated difficulty.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// ReasoningStepType is the kind of a single agentic-path trace entry.
type ReasoningStepType string

const (
	StepThought     ReasoningStepType = "thought"
	StepAction      ReasoningStepType = "action"
	StepObservation ReasoningStepType = "observation"
	StepPlanning    ReasoningStepType = "planning"
	StepReflection  ReasoningStepType = "reflection"
	StepResponse    ReasoningStepType = "response"
	StepMemory      ReasoningStepType = "memory"
	StepError       ReasoningStepType = "error"
)

// Query is the immutable input to the router.
type Query struct {
	Text                string
	SessionID           string
	Mode                QueryMode
	TopK                int
	EnableCache         bool
	SpeculativeTimeout  time.Duration
	AgenticTimeout      time.Duration
}

// ComplexityScore is C1's analysis output.
type ComplexityScore struct {
	LengthScore       float64
	KeywordScore      float64
	StructureScore    float64
	QuestionTypeScore float64
	Composite         float64
	Level             ComplexityLevel
	RecommendedMode   QueryMode
	Confidence        float64
	Factors           []string
}

// Source is a retrieved chunk of evidence.
type Source struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentID  string            `json:"document_id"`
	DocumentName string           `json:"document_name"`
	Text        string            `json:"text"`
	Score       float64           `json:"score"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReasoningStep is one entry in the agentic path's trace. Order is
// significant: steps are appended in production order.
type ReasoningStep struct {
	StepID    string                 `json:"step_id"`
	Type      ReasoningStepType      `json:"type"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SpeculativeResponse is C4's output.
type SpeculativeResponse struct {
	Text           string
	Confidence     float64
	Sources        []Source
	CacheHit       bool
	CacheMatchType string
	ProcessingTime time.Duration
	Metadata       map[string]interface{}
}

// ResponseChunk is the unit of the streamed answer.
type ResponseChunk struct {
	ChunkID        string                 `json:"chunk_id"`
	Type           ResponseType           `json:"type"`
	PathSource     PathSource             `json:"path_source"`
	Content        string                 `json:"content"`
	Confidence     *float64               `json:"confidence,omitempty"`
	Sources        []Source               `json:"sources"`
	ReasoningSteps []ReasoningStep        `json:"reasoning_steps"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// ResponseVersion is an append-only record of a committed answer text,
// kept for the duration of one query to support delta computation.
type ResponseVersion struct {
	VersionID  string
	Content    string
	PathSource PathSource
	Confidence float64
	Sources    []Source
	Timestamp  time.Time
}

// VersionDiff is the result of comparing two ResponseVersions.
type VersionDiff struct {
	Similarity       float64
	ConfidenceDelta  float64
	ConfidenceImproved bool
	SourcesAdded     []string
	SourcesRemoved   []string
	ContentChanged   bool
}

// Message is one entry in a session's conversational history.
type Message struct {
	Role      string // "user", "assistant", "system"
	Content   string
	Metadata  map[string]string
	Timestamp time.Time
}

// AgentState is C5's internal working state, threaded through the
// PLANNING -> ACTING -> OBSERVING -> DECIDE -> REFLECT cycle. It is
// not part of the externally-visible data model; it is restored from
// original_source/backend/models/agent.py's AgentState shape to give
// the agentic path's "internal accumulator" (spec.md §4.5) a concrete
// representation.
type AgentState struct {
	Query              string
	SessionID          string
	PlanningSteps      []string
	ActionHistory      []string
	RetrievedDocs      []Source
	ReasoningSteps     []ReasoningStep
	FinalResponse      string
	MemoryContext      []Message
	CurrentAction      string
	ReflectionDecision string
	Err                error
}
