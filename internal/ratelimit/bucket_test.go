package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := New(Config{Limit: 3, Window: time.Minute})
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.AllowAt("caller-1", now) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.AllowAt("caller-1", now) {
		t.Error("4th request within the window should be refused")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l := New(Config{Limit: 2, Window: time.Minute})
	base := time.Now()

	l.AllowAt("caller-1", base)
	l.AllowAt("caller-1", base.Add(10*time.Second))
	if l.AllowAt("caller-1", base.Add(20*time.Second)) {
		t.Fatal("3rd request within the window should be refused")
	}
	if !l.AllowAt("caller-1", base.Add(61*time.Second)) {
		t.Error("request after the window has slid past the first hit should be allowed")
	}
}

func TestLimiter_PerKeyIsolation(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	now := time.Now()

	if !l.AllowAt("caller-1", now) {
		t.Fatal("first request for caller-1 should be allowed")
	}
	if !l.AllowAt("caller-2", now) {
		t.Error("caller-2's bucket should be independent of caller-1's")
	}
}
