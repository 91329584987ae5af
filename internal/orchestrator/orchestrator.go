// Package orchestrator routes one prompt through the provider chain, the
// memory fallback, and the local fallback, paraphrases whatever answered,
// and persists the exchange in the background.
package orchestrator

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/askmux/internal/memory"
	"github.com/kalambet/askmux/internal/provider"
	"github.com/kalambet/askmux/internal/usage"
)

// Source labels for answers that did not come from a provider.
const (
	SourceMemory        = "memory"
	SourceLocalFallback = "local-fallback"
)

// Memory is the slice of the store the orchestrator needs.
type Memory interface {
	Insert(e memory.Entry) (int64, error)
	FindSimilar(prompt string, limit int) ([]memory.Entry, error)
}

// Paraphraser rewrites an answer in a personality's voice.
type Paraphraser interface {
	Paraphrase(text, personality string, maxChars int) (string, error)
}

// Options tune the orchestration behavior. Zero values fall back to the
// defaults from the design contract.
type Options struct {
	Personality             string
	DefaultConfidence       float64
	LocalFallbackConfidence float64
	MemoryLimit             int
	MaxAnswerChars          int
}

func (o Options) withDefaults() Options {
	if o.Personality == "" {
		o.Personality = "neutral"
	}
	if o.DefaultConfidence == 0 {
		o.DefaultConfidence = 0.8
	}
	if o.LocalFallbackConfidence == 0 {
		o.LocalFallbackConfidence = 0.3
	}
	if o.MemoryLimit == 0 {
		o.MemoryLimit = 5
	}
	return o
}

// Request is one question to answer.
type Request struct {
	Prompt      string
	Context     string
	Personality string // overrides Options.Personality when set
	MaxChars    int    // overrides Options.MaxAnswerChars when > 0
}

// Result is the outcome of one orchestration. Err is set only when
// paraphrasing failed; FinalAnswer then carries the unparaphrased text.
type Result struct {
	RequestID        string
	FinalAnswer      string
	Confidence       float64
	Source           string // provider name, "memory", or "local-fallback"
	UsedMemory       bool
	ProcessingTimeMs int64
	Err              error
}

// Orchestrator owns the request state machine. All collaborators are passed
// in at construction; there is no package-level state.
type Orchestrator struct {
	registry    *provider.Registry
	tracker     *usage.Tracker
	memory      Memory
	paraphraser Paraphraser
	opts        Options

	mu  sync.Mutex // guards rng
	rng *rand.Rand
	wg  sync.WaitGroup
}

// New builds an Orchestrator. A nil rng gets a time-seeded source; tests
// pass a fixed seed.
func New(reg *provider.Registry, tracker *usage.Tracker, mem Memory, para Paraphraser, opts Options, rng *rand.Rand) *Orchestrator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		registry:    reg,
		tracker:     tracker,
		memory:      mem,
		paraphraser: para,
		opts:        opts.withDefaults(),
		rng:         rng,
	}
}

// Respond answers one prompt. Providers are tried strictly in priority
// order, then the memory fallback, then the canned local fallback, so a
// live caller always gets a Result. The only error returned is the
// context's, when the caller has gone away; nothing is persisted then.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := slog.With("request_id", id)

	answer, confidence, source, usedMemory := o.answer(ctx, log, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	personality := req.Personality
	if personality == "" {
		personality = o.opts.Personality
	}
	maxChars := o.opts.MaxAnswerChars
	if req.MaxChars > 0 {
		maxChars = req.MaxChars
	}

	res := &Result{
		RequestID:  id,
		Confidence: confidence,
		Source:     source,
		UsedMemory: usedMemory,
	}
	final, err := o.paraphraser.Paraphrase(answer, personality, maxChars)
	if err != nil {
		log.Warn("paraphrase failed, returning raw answer", "error", err)
		res.Err = err
		final = answer
	}
	res.FinalAnswer = final
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	// Local-fallback answers are synthesized, not learned; only provider
	// and memory answers reinforce the store. A failed paraphrase has no
	// paraphrased text to satisfy the entry invariant, so it is skipped.
	if source != SourceLocalFallback && res.Err == nil {
		o.persist(log, req.Prompt, answer, final, source, confidence)
	}
	return res, nil
}

// answer walks TRY_PROVIDERS, MEMORY_FALLBACK, and LOCAL_FALLBACK, returning
// the first answer produced.
func (o *Orchestrator) answer(ctx context.Context, log *slog.Logger, req Request) (text string, confidence float64, source string, usedMemory bool) {
	for _, in := range o.registry.Eligible() {
		if ctx.Err() != nil {
			break
		}
		// The gate consumes quota before dispatch: a false return means
		// another request spent the last call, no network I/O happened.
		if !o.tracker.RecordCall(in.Name, in.CostPerCall) {
			log.Info("provider rejected locally", "provider", in.Name)
			continue
		}
		resp, err := in.Call(ctx, req.Prompt, req.Context)
		if err != nil {
			o.tracker.RecordFailure(in.Name)
			if provider.IsTimeout(err) {
				log.Warn("provider timed out", "provider", in.Name, "timeout", in.Timeout())
			} else {
				log.Warn("provider call failed", "provider", in.Name, "error", err)
			}
			continue
		}
		log.Info("provider answered", "provider", in.Name)
		return resp.Text, o.opts.DefaultConfidence, in.Name, false
	}

	entries, err := o.memory.FindSimilar(req.Prompt, o.opts.MemoryLimit)
	if err != nil {
		// Memory trouble downgrades to the local fallback, never to a failure.
		log.Warn("memory lookup failed", "error", err)
	}
	if len(entries) > 0 {
		o.mu.Lock()
		picked := entries[o.rng.Intn(len(entries))]
		o.mu.Unlock()
		o.tracker.RecordMemoryHit()
		log.Info("answered from memory", "entry_id", picked.ID, "confidence", picked.Confidence)
		return picked.OriginalAnswer, picked.Confidence, SourceMemory, true
	}

	log.Info("answered from local fallback")
	return localFallback(req.Prompt), o.opts.LocalFallbackConfidence, SourceLocalFallback, false
}

// persist writes the exchange in the background. The store is context-free,
// so a started insert cannot be aborted by the caller going away.
func (o *Orchestrator) persist(log *slog.Logger, prompt, original, paraphrased, source string, confidence float64) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, err := o.memory.Insert(memory.Entry{
			Prompt:            prompt,
			OriginalAnswer:    original,
			ParaphrasedAnswer: paraphrased,
			SourceProvider:    source,
			Confidence:        confidence,
		})
		if err != nil {
			log.Warn("persisting answer failed", "error", err)
		}
	}()
}

// Wait blocks until all in-flight persists are done. Called on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
