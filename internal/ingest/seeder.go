// Package ingest bulk-loads question/answer pairs into the memory store so a
// fresh install has a usable fallback memory before any provider has answered.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/askmux/internal/memory"
)

// SourceSeed marks entries loaded by the Seeder.
const SourceSeed = "seed"

// EntryStore persists seeded entries.
type EntryStore interface {
	Insert(e memory.Entry) (int64, error)
}

// Paraphraser rewrites answers before they are stored.
type Paraphraser interface {
	Paraphrase(text, personality string, maxChars int) (string, error)
}

// Seeder loads Q/A pairs from text files, PDFs, and URLs into the store.
type Seeder struct {
	store       EntryStore
	paraphraser Paraphraser
	personality string
	confidence  float64
	client      *http.Client
	logger      *slog.Logger
}

// NewSeeder creates a Seeder writing entries with the given personality and
// confidence. An empty personality defaults to "neutral"; a confidence <= 0
// defaults to 0.7.
func NewSeeder(store EntryStore, paraphraser Paraphraser, personality string, confidence float64) *Seeder {
	if personality == "" {
		personality = "neutral"
	}
	if confidence <= 0 {
		confidence = 0.7
	}
	return &Seeder{
		store:       store,
		paraphraser: paraphraser,
		personality: personality,
		confidence:  confidence,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      slog.Default(),
	}
}

// Report summarizes a seeding run. Files counts sources that yielded at
// least one pair; Failures counts sources that could not be read or parsed
// plus individual pairs that could not be stored.
type Report struct {
	Files    int `json:"files"`
	Pairs    int `json:"pairs"`
	Failures int `json:"failures"`
}

type sourceResult struct {
	pairs    int
	failures int
	err      error
}

// Seed processes every source and aggregates the outcome. A source starting
// with http:// or https:// is fetched over HTTP; anything else is a file
// path. Individual source failures are logged and reported, not fatal;
// cancellation aborts the whole run.
func (s *Seeder) Seed(ctx context.Context, sources []string) (*Report, error) {
	results := make([]sourceResult, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to keep disk and network reads polite.
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			pairs, failures, err := s.seedSource(gCtx, src)
			if err != nil && gCtx.Err() != nil {
				return gCtx.Err()
			}
			results[i] = sourceResult{pairs: pairs, failures: failures, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{}
	for i, r := range results {
		if r.err != nil {
			s.logger.Warn("seeding source failed", "source", sources[i], "error", r.err)
			report.Failures++
			continue
		}
		report.Files++
		report.Pairs += r.pairs
		report.Failures += r.failures
	}
	return report, nil
}

// SeedSource loads a single source and returns the number of entries stored.
func (s *Seeder) SeedSource(ctx context.Context, source string) (int, error) {
	pairs, _, err := s.seedSource(ctx, source)
	return pairs, err
}

func (s *Seeder) seedSource(ctx context.Context, source string) (int, int, error) {
	text, err := s.extract(ctx, source)
	if err != nil {
		return 0, 0, err
	}
	return s.seedText(ctx, text, source)
}

func (s *Seeder) seedText(ctx context.Context, text, source string) (int, int, error) {
	pairs := parsePairs(text)
	if len(pairs) == 0 {
		return 0, 0, fmt.Errorf("no Q/A pairs found in %s", source)
	}

	var inserted, failed int
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return inserted, failed, err
		}

		rewritten, err := s.paraphraser.Paraphrase(p.answer, s.personality, 0)
		if err != nil {
			s.logger.Warn("paraphrasing seed answer failed", "source", source, "error", err)
			failed++
			continue
		}

		_, err = s.store.Insert(memory.Entry{
			Prompt:            p.question,
			OriginalAnswer:    p.answer,
			ParaphrasedAnswer: rewritten,
			SourceProvider:    SourceSeed,
			Confidence:        s.confidence,
		})
		if err != nil {
			s.logger.Warn("storing seed entry failed", "source", source, "error", err)
			failed++
			continue
		}
		inserted++
	}
	return inserted, failed, nil
}

type pair struct {
	question string
	answer   string
}

// parsePairs extracts "Q:"/"A:" blocks from text. A question runs until its
// "A:" line; an answer runs until the next "Q:" or end of input, so answers
// may span paragraphs. Pairs missing either side are dropped.
func parsePairs(text string) []pair {
	var (
		pairs    []pair
		question []string
		answer   []string
		inAnswer bool
	)
	flush := func() {
		q := strings.TrimSpace(strings.Join(question, "\n"))
		a := strings.TrimSpace(strings.Join(answer, "\n"))
		if q != "" && a != "" {
			pairs = append(pairs, pair{question: q, answer: a})
		}
		question, answer = nil, nil
		inAnswer = false
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Q:"):
			flush()
			question = append(question, strings.TrimSpace(trimmed[2:]))
		case strings.HasPrefix(trimmed, "A:"):
			inAnswer = true
			answer = append(answer, strings.TrimSpace(trimmed[2:]))
		case inAnswer:
			answer = append(answer, line)
		case len(question) > 0 && trimmed != "":
			question = append(question, trimmed)
		}
	}
	flush()
	return pairs
}
