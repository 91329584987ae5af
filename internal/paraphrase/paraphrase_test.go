package paraphrase

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func newTestParaphraser(cfg Config) *Paraphraser {
	return New(cfg, rand.New(rand.NewSource(1)))
}

func TestParaphrase_UnknownPersonality(t *testing.T) {
	p := newTestParaphraser(Config{})
	_, err := p.Paraphrase("hello", "sarcastic", 0)
	if !errors.Is(err, ErrUnknownPersonality) {
		t.Fatalf("err = %v, want ErrUnknownPersonality", err)
	}
}

func TestParaphrase_EmptyTextPassesThrough(t *testing.T) {
	p := newTestParaphraser(Config{PGreet: 1, PConfirm: 1})
	got, err := p.Paraphrase("   ", "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "   " {
		t.Errorf("Paraphrase() = %q, want whitespace input unchanged", got)
	}
}

// TestParaphrase_NeutralNoOp verifies that the neutral personality with all
// stages disabled returns prose byte-for-byte.
func TestParaphrase_NeutralNoOp(t *testing.T) {
	p := newTestParaphraser(Config{})
	text := "Short answer."
	got, err := p.Paraphrase(text, "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != text {
		t.Errorf("Paraphrase() = %q, want %q", got, text)
	}
}

// TestParaphrase_ValidCodeUnchanged verifies that a pure-code answer passes
// through untouched even when every rewrite stage is forced on: code is never
// greeted, reordered, or decorated.
func TestParaphrase_ValidCodeUnchanged(t *testing.T) {
	p := newTestParaphraser(Config{PGreet: 1, PConfirm: 1, PConnector: 1, PReorder: 1})
	code := "def f():\n    return 1\n"
	got, err := p.Paraphrase(code, "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != code {
		t.Errorf("Paraphrase() = %q, want valid code unchanged %q", got, code)
	}
}

func TestParaphrase_RepairsBrokenPython(t *testing.T) {
	p := newTestParaphraser(Config{})
	got, err := p.Paraphrase("def f()\n    return 1\n", "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "def f():") {
		t.Errorf("Paraphrase() = %q, want repaired header %q", got, "def f():")
	}
}

func TestParaphrase_GreetingAdded(t *testing.T) {
	p := newTestParaphraser(Config{PGreet: 1})
	got, err := p.Paraphrase("The answer is 42.", "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !opensWithGreeting(got) {
		t.Errorf("Paraphrase() = %q, want a greeting prefix", got)
	}
	if !strings.Contains(got, "The answer is 42.") {
		t.Errorf("Paraphrase() = %q, original sentence lost", got)
	}

	// A second pass must not stack another greeting.
	again, err := p.Paraphrase(got, "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != got {
		t.Errorf("second pass = %q, want unchanged %q", again, got)
	}
}

func TestParaphrase_ConfirmationAdded(t *testing.T) {
	p := newTestParaphraser(Config{PConfirm: 1})
	got, err := p.Paraphrase("Use channels here.", "formal", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "Use channels here.") {
		t.Errorf("Paraphrase() = %q, want original text kept in front", got)
	}
	if !containsConfirmation(got) {
		t.Errorf("Paraphrase() = %q, want a confirmation appended", got)
	}

	again, err := p.Paraphrase(got, "formal", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != got {
		t.Errorf("second pass = %q, want unchanged %q", again, got)
	}
}

// TestParaphrase_ConnectorReplaced verifies a sentence-leading connector is
// swapped for another member of the same class, case preserved.
func TestParaphrase_ConnectorReplaced(t *testing.T) {
	p := newTestParaphraser(Config{PConnector: 1})
	got, err := p.Paraphrase("I like it. However, some disagree.", "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "However") {
		t.Fatalf("Paraphrase() = %q, connector not replaced", got)
	}
	alternatives := []string{"On the other hand", "Nevertheless", "Nonetheless", "That said"}
	found := false
	for _, alt := range alternatives {
		if strings.Contains(got, alt) {
			found = true
		}
	}
	if !found {
		t.Errorf("Paraphrase() = %q, want a capitalized contrast connector", got)
	}
	if !strings.Contains(got, "I like it.") || !strings.Contains(got, "some disagree.") {
		t.Errorf("Paraphrase() = %q, surrounding text damaged", got)
	}
}

func TestParaphrase_ConnectorClassStable(t *testing.T) {
	p := newTestParaphraser(Config{PConnector: 1})
	got, err := p.Paraphrase("It failed twice. Therefore, we rolled back.", "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, wrongClass := range []string{"However", "Additionally", "For example"} {
		if strings.Contains(got, wrongClass) {
			t.Errorf("Paraphrase() = %q, replacement left the causal class", got)
		}
	}
	causal := []string{"Consequently", "As a result", "Thus", "Hence"}
	found := false
	for _, alt := range causal {
		if strings.Contains(got, alt) {
			found = true
		}
	}
	if !found {
		t.Errorf("Paraphrase() = %q, want a causal replacement", got)
	}
}

func TestParaphrase_MarkerAdded(t *testing.T) {
	p := newTestParaphraser(Config{})
	got, err := p.Paraphrase("This error happens when the port is busy.", "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "⚠️") {
		t.Errorf("Paraphrase() = %q, want warning marker for %q", got, "error")
	}
}

func TestParaphrase_MarkerOncePerAnswer(t *testing.T) {
	p := newTestParaphraser(Config{})
	got, err := p.Paraphrase("The error was logged. Another error followed.", "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(got, "⚠️"); n != 1 {
		t.Errorf("marker appears %d times, want 1: %q", n, got)
	}
}

func TestParaphrase_MarkerNeedsWholeWord(t *testing.T) {
	p := newTestParaphraser(Config{})
	text := "The networks are slow today."
	got, err := p.Paraphrase(text, "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "networks" must not trigger the "works" marker.
	if strings.Contains(got, "✅") {
		t.Errorf("Paraphrase() = %q, marker fired on a substring", got)
	}
}

func TestParaphrase_NoMarkersForFormal(t *testing.T) {
	p := newTestParaphraser(Config{})
	text := "This error happens when the port is busy."
	got, err := p.Paraphrase(text, "formal", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != text {
		t.Errorf("Paraphrase() = %q, want unchanged %q", got, text)
	}
}

func TestParaphrase_ReorderThreeSentences(t *testing.T) {
	p := newTestParaphraser(Config{PReorder: 1})
	got, err := p.Paraphrase("First fact. Second fact. Third fact.", "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "First fact. Third fact. Second fact."
	if got != want {
		t.Errorf("Paraphrase() = %q, want %q", got, want)
	}
}

func TestParaphrase_NoReorderBelowThreeSentences(t *testing.T) {
	p := newTestParaphraser(Config{PReorder: 1})
	text := "First fact. Second fact."
	got, err := p.Paraphrase(text, "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != text {
		t.Errorf("Paraphrase() = %q, want unchanged %q", got, text)
	}
}

// TestParaphrase_NoReorderWithCode verifies reordering never fires when the
// answer carries a code block, even with three prose sentences around it.
func TestParaphrase_NoReorderWithCode(t *testing.T) {
	p := newTestParaphraser(Config{PReorder: 1})
	text := "First step. Second step. Third step.\n```go\nx := 1\n```\n"
	got, err := p.Paraphrase(text, "neutral", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != text {
		t.Errorf("Paraphrase() = %q, want unchanged %q", got, text)
	}
}

func TestParaphrase_LengthBounded(t *testing.T) {
	p := newTestParaphraser(Config{})
	long := strings.Repeat("Sentence number one is here. ", 10)
	got, err := p.Paraphrase(long, "neutral", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) > 50 {
		t.Fatalf("len = %d, want <= 50: %q", len(got), got)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("Paraphrase() = %q, want cut at a sentence boundary", got)
	}
}

// TestParaphrase_MixedProseAndFence runs every stage against an answer that
// interleaves prose and a fenced block: the fence must survive exactly, the
// framing must land on the prose around it.
func TestParaphrase_MixedProseAndFence(t *testing.T) {
	p := newTestParaphraser(Config{PGreet: 1, PConfirm: 1, PConnector: 1, PReorder: 1})
	text := "However, reflection is slow. It allocates a lot.\n\n" +
		"```go\nfunc run() {\n\tfmt.Println(\"ok\")\n}\n```\n\n" +
		"Use codegen instead."
	got, err := p.Paraphrase(text, "friendly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "```go\nfunc run() {\n\tfmt.Println(\"ok\")\n}\n```\n") {
		t.Errorf("Paraphrase() = %q, fenced block was edited", got)
	}
	if !opensWithGreeting(got) {
		t.Errorf("Paraphrase() = %q, want greeting on the leading prose", got)
	}
	if !containsConfirmation(got) {
		t.Errorf("Paraphrase() = %q, want confirmation on the trailing prose", got)
	}
	if strings.Contains(got, "However") {
		t.Errorf("Paraphrase() = %q, connector not replaced", got)
	}
}

func TestKnownPersonalities(t *testing.T) {
	want := []string{"formal", "friendly", "neutral", "playful"}
	got := KnownPersonalities()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("KnownPersonalities() = %v, want %v", got, want)
	}
	if !KnownPersonality("neutral") {
		t.Error("KnownPersonality(neutral) = false, want true")
	}
	if KnownPersonality("robot") {
		t.Error("KnownPersonality(robot) = true, want false")
	}
}
