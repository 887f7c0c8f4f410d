package textutil

import "testing"

func TestWords_SplitsOnPunctuationAndWhitespace(t *testing.T) {
	got := Words("what's the capital of France?")
	want := []string{"what", "s", "the", "capital", "of", "France"}
	if len(got) != len(want) {
		t.Fatalf("Words() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Words()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWords_NormalizesCombiningMarks(t *testing.T) {
	precomposed := "café"        // e with acute, precomposed (NFC)
	decomposed := "café"        // e + combining acute accent (NFD)

	got, want := Words(precomposed), Words(decomposed)
	if len(got) != 1 || len(want) != 1 {
		t.Fatalf("Words(precomposed) = %v, Words(decomposed) = %v, want one word each", got, want)
	}
	if got[0] != want[0] {
		t.Errorf("precomposed and decomposed forms normalized differently: %q vs %q", got[0], want[0])
	}
}

func TestWordCount_EmptyString(t *testing.T) {
	if n := WordCount(""); n != 0 {
		t.Errorf("WordCount(\"\") = %d, want 0", n)
	}
}
