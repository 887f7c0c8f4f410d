// Package complexity implements C1: a pure, deterministic scorer that
// recommends a processing mode for a query based on length, keyword,
// structure, and question-type heuristics.
package complexity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/textutil"
)

// analyticalKeywords and factualKeywords are the EN+KO keyword lists
// from the reference analyzer. Additions for other scripts are out of
// scope per spec.md §4.1.
var analyticalKeywords = []string{
	"compare", "contrast", "analyze", "evaluate", "assess", "critique",
	"synthesize", "justify", "argue", "debate", "implications",
	"비교", "대조", "분석", "평가", "비판", "종합", "정당화", "논증", "토론", "시사점",
}

var factualKeywords = []string{
	"what", "who", "when", "where", "which", "define", "list",
	"무엇", "누구", "언제", "어디", "어느", "정의", "나열",
}

var (
	simplePattern  = regexp.MustCompile(`(?i)\b(what is|who is|when|where|which|define|list)\b|\b(무엇|누구|언제|어디|어느|정의|나열)\b`)
	complexPattern = regexp.MustCompile(`(?i)\b(compare|contrast|analyze|evaluate|assess|explain why|how does)\b|\b(비교|대조|분석|평가|설명|이유|어떻게)\b|\b(advantages? and disadvantages?|pros? and cons?)\b|\b(장단점|장점과 단점)\b`)

	analyticalQuestion = []string{"compare", "contrast", "analyze", "evaluate", "assess", "비교", "대조", "분석", "평가"}
	explanatoryQuestion = []string{"how", "why", "어떻게", "왜"}
	factualQuestion     = []string{"what", "who", "when", "where", "which", "무엇", "누구", "언제", "어디"}

	conjunctionPattern = regexp.MustCompile(`(?i)\b(and|or|but|그리고|또는|하지만)\b`)
	sentenceSplit       = regexp.MustCompile(`[.!?]+`)
)

const (
	weightLength       = 0.2
	weightKeywords     = 0.4
	weightStructure    = 0.2
	weightQuestionType = 0.2
)

// Analyze scores query and returns a ComplexityScore carrying the
// recommended mode. It is a pure function: no I/O, deterministic.
func Analyze(query string) model.ComplexityScore {
	lengthScore := analyzeLength(query)
	keywordScore := analyzeKeywords(query)
	structureScore := analyzeStructure(query)
	questionTypeScore := analyzeQuestionType(query)

	composite := weightLength*lengthScore +
		weightKeywords*keywordScore +
		weightStructure*structureScore +
		weightQuestionType*questionTypeScore

	var level model.ComplexityLevel
	var mode model.QueryMode
	var confidence float64

	switch {
	case composite < 0.35:
		level, mode, confidence = model.ComplexitySimple, model.ModeFast, 0.85
	case composite < 0.65:
		level, mode, confidence = model.ComplexityModerate, model.ModeBalanced, 0.90
	default:
		level, mode, confidence = model.ComplexityComplex, model.ModeDeep, 0.80
	}

	if strings.TrimSpace(query) == "" {
		level, confidence = model.ComplexitySimple, 0.0
	}

	return model.ComplexityScore{
		LengthScore:       lengthScore,
		KeywordScore:      keywordScore,
		StructureScore:    structureScore,
		QuestionTypeScore: questionTypeScore,
		Composite:         composite,
		Level:             level,
		RecommendedMode:   mode,
		Confidence:        confidence,
		Factors:           reasoningFactors(query, lengthScore, keywordScore, structureScore, questionTypeScore),
	}
}

// wordCount mirrors the reference analyzer's query.split(): a plain
// whitespace split, not word-character segmentation. Punctuation-joined
// tokens like "state-of-the-art" must count as one word here, the same
// as in the original, even though textutil.Words would split them.
func wordCount(query string) int {
	return len(strings.Fields(query))
}

func analyzeLength(query string) float64 {
	wordCount := wordCount(query)
	switch {
	case wordCount < 10:
		return 0.0
	case wordCount < 25:
		return 0.5
	default:
		return 1.0
	}
}

func analyzeKeywords(query string) float64 {
	lower := strings.ToLower(textutil.Normalize(query))

	deepCount := countMatches(lower, analyticalKeywords)
	switch {
	case deepCount >= 2:
		return 1.0
	case deepCount == 1:
		return 0.7
	}

	if countMatches(lower, factualKeywords) >= 1 {
		return 0.2
	}

	switch {
	case complexPattern.MatchString(query):
		return 0.8
	case simplePattern.MatchString(query):
		return 0.1
	}

	return 0.5
}

func analyzeStructure(query string) float64 {
	sentenceCount := 0
	for _, s := range sentenceSplit.Split(query, -1) {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}

	questionCount := strings.Count(query, "?") + strings.Count(query, "？")
	conjunctionCount := len(conjunctionPattern.FindAllString(query, -1))

	switch {
	case sentenceCount > 2 || questionCount > 1:
		return 1.0
	case conjunctionCount >= 2:
		return 0.7
	case conjunctionCount == 1:
		return 0.4
	default:
		return 0.2
	}
}

func analyzeQuestionType(query string) float64 {
	lower := strings.ToLower(textutil.Normalize(query))

	if containsAny(lower, analyticalQuestion) {
		return 0.9
	}
	if containsAny(lower, explanatoryQuestion) {
		return 0.5
	}
	if containsAny(lower, factualQuestion) {
		return 0.2
	}
	return 0.5
}

func countMatches(lower string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return count
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func reasoningFactors(query string, lengthScore, keywordScore, structureScore, questionTypeScore float64) []string {
	var factors []string

	words := wordCount(query)
	switch {
	case words < 10:
		factors = append(factors, fmt.Sprintf("Short query (%d words)", words))
	case words > 25:
		factors = append(factors, fmt.Sprintf("Long query (%d words)", words))
	}

	switch {
	case keywordScore > 0.7:
		factors = append(factors, "Contains analytical keywords (compare, analyze, evaluate)")
	case keywordScore < 0.3:
		factors = append(factors, "Contains factual keywords (what, who, when)")
	}

	switch {
	case structureScore > 0.7:
		factors = append(factors, "Complex structure (multiple sentences or questions)")
	case structureScore < 0.3:
		factors = append(factors, "Simple structure (single sentence)")
	}

	switch {
	case questionTypeScore > 0.7:
		factors = append(factors, "Analytical question type")
	case questionTypeScore < 0.3:
		factors = append(factors, "Factual question type")
	}

	if len(factors) == 0 {
		factors = append(factors, "Moderate complexity query")
	}
	return factors
}

// ModeExplanation returns a human-readable explanation of the
// recommended mode, in the style of the reference analyzer's
// get_mode_explanation.
func ModeExplanation(score model.ComplexityScore) string {
	factors := strings.Join(score.Factors, ", ")
	switch score.RecommendedMode {
	case model.ModeFast:
		return fmt.Sprintf("Recommended FAST mode (~1s): your query appears factual and straightforward. Factors: %s", factors)
	case model.ModeBalanced:
		return fmt.Sprintf("Recommended BALANCED mode (~3-30s): your query requires moderate analysis, with a quick initial answer and progressive refinement. Factors: %s", factors)
	default:
		return fmt.Sprintf("Recommended DEEP mode (~30s): your query requires comprehensive analysis. Factors: %s", factors)
	}
}
