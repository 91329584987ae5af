package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kalambet/askmux/internal/memory"
)

type mockEntryStore struct {
	mu       sync.Mutex
	inserted []memory.Entry
	insertFn func(e memory.Entry) (int64, error)
}

func (m *mockEntryStore) Insert(e memory.Entry) (int64, error) {
	if m.insertFn != nil {
		return m.insertFn(e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, e)
	return int64(len(m.inserted)), nil
}

func (m *mockEntryStore) entries() []memory.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Entry(nil), m.inserted...)
}

type mockParaphraser struct {
	paraphraseFn func(text, personality string, maxChars int) (string, error)
}

func (m *mockParaphraser) Paraphrase(text, personality string, maxChars int) (string, error) {
	if m.paraphraseFn != nil {
		return m.paraphraseFn(text, personality, maxChars)
	}
	return "rephrased: " + text, nil
}

func writeSeedFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []pair
	}{
		{
			name: "two pairs",
			text: "Q: What is a goroutine?\nA: A lightweight thread.\n\nQ: What is a channel?\nA: A typed conduit.\n",
			want: []pair{
				{question: "What is a goroutine?", answer: "A lightweight thread."},
				{question: "What is a channel?", answer: "A typed conduit."},
			},
		},
		{
			name: "answer spans paragraphs",
			text: "Q: How do I profile?\nA: Use pprof.\n\nStart with the CPU profile.\n",
			want: []pair{
				{question: "How do I profile?", answer: "Use pprof.\n\nStart with the CPU profile."},
			},
		},
		{
			name: "question continues on next line",
			text: "Q: What does the defer\nstatement do?\nA: Runs the call at return.\n",
			want: []pair{
				{question: "What does the defer\nstatement do?", answer: "Runs the call at return."},
			},
		},
		{
			name: "unanswered question dropped",
			text: "Q: Orphan?\n\nQ: Real?\nA: Yes.\n",
			want: []pair{
				{question: "Real?", answer: "Yes."},
			},
		},
		{
			name: "answer without question dropped",
			text: "A: Lonely answer.\n",
			want: nil,
		},
		{
			name: "no tags",
			text: "Just some prose.\nMore prose.\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePairs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("parsePairs returned %d pairs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("pair %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSeedSource_TextFile(t *testing.T) {
	path := writeSeedFile(t, "faq.txt",
		"Q: What is a goroutine?\nA: A lightweight thread.\n\nQ: What is a channel?\nA: A typed conduit.\n")

	store := &mockEntryStore{}
	s := NewSeeder(store, &mockParaphraser{}, "", 0)

	n, err := s.SeedSource(context.Background(), path)
	if err != nil {
		t.Fatalf("SeedSource: %v", err)
	}
	if n != 2 {
		t.Fatalf("SeedSource stored %d entries, want 2", n)
	}

	got := store.entries()
	if len(got) != 2 {
		t.Fatalf("store holds %d entries, want 2", len(got))
	}
	first := got[0]
	if first.Prompt != "What is a goroutine?" {
		t.Errorf("Prompt = %q, want %q", first.Prompt, "What is a goroutine?")
	}
	if first.OriginalAnswer != "A lightweight thread." {
		t.Errorf("OriginalAnswer = %q, want %q", first.OriginalAnswer, "A lightweight thread.")
	}
	if first.ParaphrasedAnswer != "rephrased: A lightweight thread." {
		t.Errorf("ParaphrasedAnswer = %q, want paraphrased form", first.ParaphrasedAnswer)
	}
	if first.SourceProvider != SourceSeed {
		t.Errorf("SourceProvider = %q, want %q", first.SourceProvider, SourceSeed)
	}
	if first.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want default 0.7", first.Confidence)
	}
}

func TestSeed_MultipleFiles(t *testing.T) {
	files := []string{
		writeSeedFile(t, "a.txt", "Q: one?\nA: first.\n"),
		writeSeedFile(t, "b.txt", "Q: two?\nA: second.\n\nQ: three?\nA: third.\n"),
		writeSeedFile(t, "c.md", "Q: four?\nA: fourth.\n"),
	}

	store := &mockEntryStore{}
	s := NewSeeder(store, &mockParaphraser{}, "neutral", 0.9)

	report, err := s.Seed(context.Background(), files)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.Files != 3 || report.Pairs != 4 || report.Failures != 0 {
		t.Errorf("report = %+v, want {Files:3 Pairs:4 Failures:0}", *report)
	}
	if len(store.entries()) != 4 {
		t.Errorf("store holds %d entries, want 4", len(store.entries()))
	}
	for _, e := range store.entries() {
		if e.Confidence != 0.9 {
			t.Errorf("Confidence = %v, want 0.9", e.Confidence)
		}
	}
}

func TestSeed_MissingFileCountedAsFailure(t *testing.T) {
	good := writeSeedFile(t, "good.txt", "Q: one?\nA: first.\n")

	store := &mockEntryStore{}
	s := NewSeeder(store, &mockParaphraser{}, "neutral", 0.7)

	report, err := s.Seed(context.Background(), []string{good, "/does/not/exist.txt"})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.Files != 1 || report.Pairs != 1 || report.Failures != 1 {
		t.Errorf("report = %+v, want {Files:1 Pairs:1 Failures:1}", *report)
	}
}

func TestSeed_NoPairsCountedAsFailure(t *testing.T) {
	path := writeSeedFile(t, "prose.txt", "This file has no tagged blocks at all.\n")

	store := &mockEntryStore{}
	s := NewSeeder(store, &mockParaphraser{}, "neutral", 0.7)

	report, err := s.Seed(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.Files != 0 || report.Failures != 1 {
		t.Errorf("report = %+v, want {Files:0 Pairs:0 Failures:1}", *report)
	}
	if len(store.entries()) != 0 {
		t.Errorf("store holds %d entries, want 0", len(store.entries()))
	}
}

func TestSeed_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><style>body{color:red}</style><script>var x=1;</script></head>`+
			`<body><p>Q: What is askmux?</p><p>A: A router for answer providers.</p></body></html>`)
	}))
	defer srv.Close()

	store := &mockEntryStore{}
	s := NewSeeder(store, &mockParaphraser{}, "neutral", 0.7)

	report, err := s.Seed(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.Files != 1 || report.Pairs != 1 || report.Failures != 0 {
		t.Fatalf("report = %+v, want {Files:1 Pairs:1 Failures:0}", *report)
	}
	got := store.entries()
	if got[0].Prompt != "What is askmux?" {
		t.Errorf("Prompt = %q, want %q", got[0].Prompt, "What is askmux?")
	}
	if got[0].OriginalAnswer != "A router for answer providers." {
		t.Errorf("OriginalAnswer = %q, want %q", got[0].OriginalAnswer, "A router for answer providers.")
	}
}

func TestSeed_Canceled(t *testing.T) {
	path := writeSeedFile(t, "faq.txt", "Q: one?\nA: first.\n")

	store := &mockEntryStore{}
	s := NewSeeder(store, &mockParaphraser{}, "neutral", 0.7)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Seed(ctx, []string{path})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Seed error = %v, want context.Canceled", err)
	}
}

func TestSeed_ParaphraseFailureCounted(t *testing.T) {
	path := writeSeedFile(t, "faq.txt", "Q: one?\nA: first.\n\nQ: two?\nA: second.\n")

	store := &mockEntryStore{}
	para := &mockParaphraser{
		paraphraseFn: func(_, _ string, _ int) (string, error) {
			return "", fmt.Errorf("no such personality")
		},
	}
	s := NewSeeder(store, para, "neutral", 0.7)

	report, err := s.Seed(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.Files != 1 || report.Pairs != 0 || report.Failures != 2 {
		t.Errorf("report = %+v, want {Files:1 Pairs:0 Failures:2}", *report)
	}
	if len(store.entries()) != 0 {
		t.Errorf("store holds %d entries, want 0", len(store.entries()))
	}
}

func TestSeed_InsertFailureCounted(t *testing.T) {
	path := writeSeedFile(t, "faq.txt", "Q: one?\nA: first.\n")

	store := &mockEntryStore{
		insertFn: func(_ memory.Entry) (int64, error) {
			return 0, fmt.Errorf("database closed")
		},
	}
	s := NewSeeder(store, &mockParaphraser{}, "neutral", 0.7)

	report, err := s.Seed(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if report.Files != 1 || report.Pairs != 0 || report.Failures != 1 {
		t.Errorf("report = %+v, want {Files:1 Pairs:0 Failures:1}", *report)
	}
}
