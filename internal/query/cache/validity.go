package cache

import (
	"strings"

	"github.com/hybridrag/queryengine/internal/query/model"
)

// failureMarkers is the blocklist of phrases that mark a response as a
// fallback/error text rather than a genuine answer. Ported verbatim
// from the reference speculative processor's error_indicators list.
var failureMarkers = []string{
	"no response generated",
	"unable to generate",
	"processing your query",
	"please wait for detailed results",
	"an error occurred",
	"unable to process",
	"no relevant documents found",
	"performing deeper search",
	"try again",
	"contact support",
}

// MinConfidence is the floor below which a response is not cacheable
// or returnable from cache, per spec.md §4.2.
const MinConfidence = 0.3

// IsValid reports whether resp passes the validity predicates of
// spec.md §4.2: non-empty text, not a known failure marker, confidence
// at or above MinConfidence, and at least one attached source.
func IsValid(resp model.SpeculativeResponse) bool {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if resp.Confidence < MinConfidence {
		return false
	}
	if len(resp.Sources) == 0 {
		return false
	}
	return true
}
