package query

import "testing"

func TestNewQueryID_UniqueAndPrefixed(t *testing.T) {
	a := NewQueryID()
	b := NewQueryID()

	if a == b {
		t.Error("expected distinct query IDs across calls")
	}
	if len(a) != len("query_")+12 {
		t.Errorf("NewQueryID() = %q, want 6 trailing hex bytes", a)
	}
	if a[:6] != "query_" {
		t.Errorf("NewQueryID() = %q, want query_ prefix", a)
	}
}
