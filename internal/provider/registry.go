package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/askmux/internal/config"
)

// QuotaReader is the read side of usage tracking the registry consults when
// deciding eligibility.
type QuotaReader interface {
	Remaining(name string) int
}

// Instance is one configured provider bound to the caller for its kind. The
// binding happens once, at registry construction; nothing dispatches on kind
// strings after that.
type Instance struct {
	config.Provider

	order  int // position in the config file, breaks priority ties
	caller Caller
}

// Timeout returns the per-call deadline for this provider.
func (in *Instance) Timeout() time.Duration {
	return time.Duration(in.TimeoutSeconds) * time.Second
}

// Call dispatches the prompt to the provider with its configured model,
// token budget, temperature, and timeout.
func (in *Instance) Call(ctx context.Context, prompt, extra string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout())
	defer cancel()

	return in.caller.Call(ctx, Request{
		Prompt:      prompt,
		Context:     extra,
		Model:       in.Model,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
}

// Registry holds the configured provider set. Reload replaces the whole set
// atomically; readers observe either the old or the new set in full.
type Registry struct {
	mu     sync.RWMutex
	sorted []*Instance           // by (priority asc, config order)
	byName map[string]*Instance
	quota  QuotaReader
}

// New builds a registry from validated configuration. Construction fails
// when a caller cannot be built for an entry; that is a configuration
// problem and fatal by contract.
func New(cfgs []config.Provider, quota QuotaReader) (*Registry, error) {
	sorted, byName, err := build(cfgs)
	if err != nil {
		return nil, err
	}
	return &Registry{sorted: sorted, byName: byName, quota: quota}, nil
}

func build(cfgs []config.Provider) ([]*Instance, map[string]*Instance, error) {
	sorted := make([]*Instance, 0, len(cfgs))
	byName := make(map[string]*Instance, len(cfgs))

	for i, cfg := range cfgs {
		caller, err := newCaller(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
		}
		in := &Instance{Provider: cfg, order: i, caller: caller}
		sorted = append(sorted, in)
		byName[cfg.Name] = in
	}

	// Stable sort keeps config-file order among equal priorities.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted, byName, nil
}

// Eligible returns the providers worth trying right now: enabled, with
// remaining daily quota, in priority order.
func (r *Registry) Eligible() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, 0, len(r.sorted))
	for _, in := range r.sorted {
		if !in.Enabled {
			continue
		}
		if r.quota != nil && r.quota.Remaining(in.Name) <= 0 {
			continue
		}
		out = append(out, in)
	}
	return out
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return in, nil
}

// All returns the full configured set in priority order, eligible or not.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Reload replaces the provider set. The replacement is built and validated
// completely before the swap; on error the current set stays in place.
func (r *Registry) Reload(cfgs []config.Provider) error {
	sorted, byName, err := build(cfgs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sorted = sorted
	r.byName = byName
	r.mu.Unlock()
	return nil
}

// newCaller binds a config entry to the caller implementation for its kind.
func newCaller(cfg config.Provider) (Caller, error) {
	key := cfg.ResolveKey()
	switch cfg.Kind {
	case config.KindOpenAI:
		return newOpenAICaller(key, cfg.Endpoint), nil
	case config.KindAnthropic:
		return newAnthropicCaller(key, cfg.Endpoint), nil
	case config.KindGemini:
		return newGeminiCaller(key)
	case config.KindHuggingFace:
		return newHuggingFaceCaller(key, cfg.Endpoint), nil
	case config.KindLocal:
		return newLocalCaller(cfg.Endpoint), nil
	case config.KindCustom:
		return newCustomCaller(key, cfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
