package memory

import (
	"strings"
	"testing"
)

// TestKeywords verifies lowercasing, punctuation stripping, stopword removal,
// dedupe, and ordering of the extractor.
func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "lowercases and strips punctuation",
			in:   "How do Goroutines work?",
			want: []string{"goroutines", "work"},
		},
		{
			name: "drops stopwords",
			in:   "what is the best way to learn go",
			want: []string{"best", "way", "learn", "go"},
		},
		{
			name: "dedupes preserving first occurrence order",
			in:   "go tests go vet go",
			want: []string{"go", "tests", "vet"},
		},
		{
			name: "splits on every non-alphanumeric rune",
			in:   "python 3.12 asyncio",
			want: []string{"python", "3", "12", "asyncio"},
		},
		{
			name: "keeps unicode letters",
			in:   "Почему Go быстрый",
			want: []string{"почему", "go", "быстрый"},
		},
		{
			name: "contraction leftovers are dropped",
			in:   "what's Go's scheduler doing",
			want: []string{"go", "scheduler"},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
		{
			name: "only stopwords",
			in:   "what is it",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Keywords(tt.in)
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Keywords(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestKeywordsCap verifies the extractor stops at 10 tokens.
func TestKeywordsCap(t *testing.T) {
	in := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima"
	got := Keywords(in)
	if len(got) != 10 {
		t.Fatalf("got %d keywords, want 10: %v", len(got), got)
	}
	if got[0] != "alpha" || got[9] != "juliett" {
		t.Errorf("cap should keep the first 10 tokens, got %v", got)
	}
}
