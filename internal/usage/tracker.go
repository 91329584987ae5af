// Package usage keeps rolling per-provider call counters for quota
// enforcement and reporting. Counters live in process memory: correctness
// depends only on comparing wall-clock time at access, not on background
// timers, so a restart simply starts a fresh day.
package usage

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Limit pairs a provider name with its configured daily call allowance.
// A zero allowance means unmetered: calls are counted but never refused.
type Limit struct {
	Name  string
	Daily int
}

// counter is one provider's usage state. Each counter has its own lock so
// the reset check and the compare-and-increment are atomic as a pair and
// concurrent requests cannot double-count against quota.
type counter struct {
	mu         sync.Mutex
	daily      int
	callsToday int
	totalCalls int64
	failures   int64
	totalCost  float64
	resetAt    time.Time
}

// applyReset rolls the daily window forward when it has lapsed.
// Callers hold c.mu.
func (c *counter) applyReset(now time.Time) {
	if now.Before(c.resetAt) {
		return
	}
	c.callsToday = 0
	c.resetAt = startOfNextUTCDay(now)
}

func startOfNextUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Tracker owns all usage counters, keyed by provider name.
type Tracker struct {
	mu         sync.RWMutex
	counters   map[string]*counter
	memoryHits int64
	now        func() time.Time
}

// New creates a Tracker. A nil clock means wall-clock time; tests inject a
// frozen clock.
func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		counters: make(map[string]*counter),
		now:      now,
	}
}

// Sync aligns the counter set with the configured providers: new names get
// fresh counters, surviving names keep today's call count under the new
// limit, removed names are dropped. Called at startup and on reload.
func (t *Tracker) Sync(limits []Limit) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keep := make(map[string]bool, len(limits))
	for _, l := range limits {
		keep[l.Name] = true
		if c, ok := t.counters[l.Name]; ok {
			c.mu.Lock()
			c.daily = l.Daily
			c.mu.Unlock()
			continue
		}
		t.counters[l.Name] = &counter{
			daily:   l.Daily,
			resetAt: startOfNextUTCDay(t.now()),
		}
	}
	for name := range t.counters {
		if !keep[name] {
			delete(t.counters, name)
		}
	}
}

func (t *Tracker) counter(name string) *counter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counters[name]
}

// Remaining reports how many calls the provider may still make today, after
// applying any pending daily reset. Never negative. Unknown providers have
// nothing remaining; unmetered providers are never exhausted.
func (t *Tracker) Remaining(name string) int {
	c := t.counter(name)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyReset(t.now())
	if c.daily == 0 {
		return math.MaxInt
	}
	if c.callsToday >= c.daily {
		return 0
	}
	return c.daily - c.callsToday
}

// RecordCall asks for one call's worth of quota and, if granted, counts the
// call and accumulates its cost. A false return means the daily limit is
// already spent and nothing was recorded; the caller must not dispatch.
// The check and the increment run under one lock, so quota is a hard limit
// under concurrent requests. Unknown providers log a warning and report
// true: usage tracking never aborts a user-facing request.
func (t *Tracker) RecordCall(name string, cost float64) bool {
	c := t.counter(name)
	if c == nil {
		slog.Warn("usage: recording call for unknown provider", "provider", name)
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyReset(t.now())
	if c.daily > 0 && c.callsToday >= c.daily {
		return false
	}
	c.callsToday++
	c.totalCalls++
	c.totalCost += cost
	return true
}

// RecordFailure tallies a failed call for reporting. Quota is unaffected:
// the call was already counted when it was dispatched.
func (t *Tracker) RecordFailure(name string) {
	c := t.counter(name)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

// RecordMemoryHit counts an answer served from the memory fallback.
func (t *Tracker) RecordMemoryHit() {
	t.mu.Lock()
	t.memoryHits++
	t.mu.Unlock()
}

// ProviderUsage is a point-in-time view of one provider's counters.
// Remaining is -1 for unmetered providers.
type ProviderUsage struct {
	Name       string    `json:"name"`
	CallsToday int       `json:"calls_today"`
	DailyLimit int       `json:"daily_limit"`
	Remaining  int       `json:"remaining"`
	TotalCalls int64     `json:"total_calls"`
	Failures   int64     `json:"failures"`
	TotalCost  float64   `json:"total_cost"`
	ResetAt    time.Time `json:"reset_at"`
}

// Report is the read-only view consumed by the reporting surfaces.
type Report struct {
	Providers  []ProviderUsage `json:"providers"`
	MemoryHits int64           `json:"memory_hits"`
}

// Snapshot returns current counters for every tracked provider, sorted by
// name for stable output.
func (t *Tracker) Snapshot() Report {
	t.mu.RLock()
	names := make([]string, 0, len(t.counters))
	for name := range t.counters {
		names = append(names, name)
	}
	hits := t.memoryHits
	t.mu.RUnlock()
	sort.Strings(names)

	report := Report{MemoryHits: hits}
	for _, name := range names {
		c := t.counter(name)
		if c == nil {
			continue
		}
		c.mu.Lock()
		c.applyReset(t.now())
		u := ProviderUsage{
			Name:       name,
			CallsToday: c.callsToday,
			DailyLimit: c.daily,
			TotalCalls: c.totalCalls,
			Failures:   c.failures,
			TotalCost:  c.totalCost,
			ResetAt:    c.resetAt,
		}
		switch {
		case c.daily == 0:
			u.Remaining = -1
		case c.callsToday >= c.daily:
			u.Remaining = 0
		default:
			u.Remaining = c.daily - c.callsToday
		}
		c.mu.Unlock()
		report.Providers = append(report.Providers, u)
	}
	return report
}
