// Package querytype implements the lightweight query-type classifier
// spec.md §4.3 refers to without naming: it decides whether C3 should
// run fused vector+lexical retrieval or vector search alone. Ported in
// full from original_source's query_type_analyzer.py, which the
// distillation dropped.
package querytype

import (
	"regexp"
)

// Type is the classified query category.
type Type string

const (
	TypeKeyword    Type = "keyword"
	TypeSemantic   Type = "semantic"
	TypeComparison Type = "comparison"
	TypeTechnical  Type = "technical"
)

// Analysis is the classifier's output.
type Analysis struct {
	Type       Type
	Confidence float64
	Reasoning  string
	UseHybrid  bool
}

var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\.\d+(\.\d+)?`),
	regexp.MustCompile(`(?i)error\s*\d+|exception|traceback`),
	regexp.MustCompile(`[A-Z]{2,}(?:\s+[A-Z]{2,})*`),
	regexp.MustCompile("`[^`]+`|\"[^\"]+\""),
	regexp.MustCompile(`--\w+|-\w+`),
}

var comparisonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bvs\b|\bversus\b`),
	regexp.MustCompile(`(?i)\bcompare\b|\bcomparison\b`),
	regexp.MustCompile(`(?i)\bdifference\b|\bdifferent\b`),
	regexp.MustCompile(`(?i)\bbetter\b|\bworse\b`),
	regexp.MustCompile(`(?i)\bor\b.*\bor\b`),
}

var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfunction\b|\bmethod\b|\bclass\b`),
	regexp.MustCompile(`(?i)\bimport\b|\bexport\b`),
	regexp.MustCompile(`(?i)\bAPI\b|\bSDK\b|\bCLI\b`),
	regexp.MustCompile(`(?i)\bconfig\b|\bconfiguration\b`),
	regexp.MustCompile(`(?i)\binstall\b|\bsetup\b`),
}

var semanticPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat\s+is\b|\bwhat\s+are\b`),
	regexp.MustCompile(`(?i)\bhow\s+does\b|\bhow\s+do\b`),
	regexp.MustCompile(`(?i)\bwhy\b|\bexplain\b`),
	regexp.MustCompile(`(?i)\bunderstand\b|\bconcept\b`),
	regexp.MustCompile(`(?i)\blearn\b|\bteach\b`),
}

// Analyze classifies query and decides whether hybrid (vector+lexical)
// retrieval should be used.
func Analyze(query string) Analysis {
	scores := map[Type]float64{
		TypeKeyword:    scoreKeyword(query),
		TypeComparison: scoreAny(query, comparisonPatterns, 0.4),
		TypeTechnical:  scoreAny(query, technicalPatterns, 0.25),
		TypeSemantic:   scoreSemantic(query),
	}

	best := TypeSemantic
	bestScore := -1.0
	for _, t := range []Type{TypeKeyword, TypeComparison, TypeTechnical, TypeSemantic} {
		if scores[t] > bestScore {
			bestScore = scores[t]
			best = t
		}
	}

	return Analysis{
		Type:       best,
		Confidence: bestScore,
		Reasoning:  reasoning(best),
		UseHybrid:  best == TypeKeyword || best == TypeComparison || best == TypeTechnical,
	}
}

func scoreKeyword(query string) float64 {
	score := 0.0
	matches := 0
	for _, p := range keywordPatterns {
		if p.MatchString(query) {
			score += 0.3
			matches++
		}
	}
	if matches > 1 {
		score += 0.2
	}
	return clamp(score)
}

func scoreAny(query string, patterns []*regexp.Regexp, increment float64) float64 {
	score := 0.0
	for _, p := range patterns {
		if p.MatchString(query) {
			score += increment
		}
	}
	return clamp(score)
}

func scoreSemantic(query string) float64 {
	score := 0.3
	for _, p := range semanticPatterns {
		if p.MatchString(query) {
			score += 0.2
		}
	}
	return clamp(score)
}

func clamp(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	return score
}

func reasoning(t Type) string {
	switch t {
	case TypeKeyword:
		return "query contains specific terms, versions, or codes requiring exact matching"
	case TypeComparison:
		return "query asks for a comparison between options"
	case TypeTechnical:
		return "query involves technical terms or code"
	default:
		return "query is conceptual and benefits from semantic understanding"
	}
}
