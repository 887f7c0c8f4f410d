// Package textutil provides Unicode-aware text segmentation for
// scripts where whitespace alone is not a reliable word boundary
// (Hangul input in particular can arrive NFD-decomposed from some
// clients, which breaks naive byte-level keyword matching).
package textutil

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in NFC form so combining-mark sequences compare
// equal to their precomposed form before keyword/pattern matching.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// Words splits s into runs of letters/digits, normalizing first. Unlike
// strings.Fields it treats runs of punctuation or symbols as boundaries
// too, so "what's" yields the two words "what" and "s".
func Words(s string) []string {
	normalized := Normalize(s)
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, r)
		} else {
			flush()
		}
	}
	flush()

	return words
}

// WordCount is a convenience wrapper over len(Words(s)).
func WordCount(s string) int {
	return len(Words(s))
}
