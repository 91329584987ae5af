package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/askmux/internal/config"
	"github.com/kalambet/askmux/internal/ingest"
	"github.com/kalambet/askmux/internal/memory"
	"github.com/kalambet/askmux/internal/orchestrator"
	"github.com/kalambet/askmux/internal/paraphrase"
	"github.com/kalambet/askmux/internal/provider"
	"github.com/kalambet/askmux/internal/usage"
)

// --- helpers ---

func answerServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, text)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(name, endpoint string, priority, daily int) config.Provider {
	return config.Provider{
		Name:           name,
		Kind:           config.KindCustom,
		Endpoint:       endpoint,
		Model:          "test-model",
		DailyLimit:     daily,
		Priority:       priority,
		Enabled:        true,
		CostPerCall:    0.01,
		TimeoutSeconds: 1,
		MaxTokens:      128,
		Temperature:    0.2,
	}
}

func newTestDeps(t *testing.T, cfgs []config.Provider) Deps {
	t.Helper()

	tracker := usage.New(nil)
	limits := make([]usage.Limit, len(cfgs))
	for i, c := range cfgs {
		limits[i] = usage.Limit{Name: c.Name, Daily: c.DailyLimit}
	}
	tracker.Sync(limits)

	reg, err := provider.New(cfgs, tracker)
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}

	store, err := memory.Open(":memory:", 0.6, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	para := paraphrase.New(paraphrase.Config{}, rand.New(rand.NewSource(1)))
	orch := orchestrator.New(reg, tracker, store, para, orchestrator.Options{}, rand.New(rand.NewSource(1)))
	// Cleanups run last-in-first-out: drain persists before the store closes.
	t.Cleanup(orch.Wait)

	return Deps{
		Orchestrator:  orch,
		Registry:      reg,
		Tracker:       tracker,
		Store:         store,
		RetentionDays: 30,
	}
}

func seedEntry(t *testing.T, store *memory.Store, prompt, answer string) {
	t.Helper()
	_, err := store.Insert(memory.Entry{
		Prompt:            prompt,
		OriginalAnswer:    answer,
		ParaphrasedAnswer: answer,
		SourceProvider:    "seed",
		Confidence:        0.7,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

// --- tests ---

func TestHealthz(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.Token = "secret"
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestBearerAuth_Required(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.Token = "secret-token"
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("right token: status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAsk(t *testing.T) {
	srv := answerServer(t, "Interfaces describe behavior, not data.")
	deps := newTestDeps(t, []config.Provider{testProvider("p1", srv.URL, 1, 10)})
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"prompt":"How do Go interfaces work?"}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header is empty")
	}

	var res askResponse
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.ID == "" {
		t.Error("ID is empty")
	}
	if res.Source != "p1" {
		t.Errorf("Source = %q, want %q", res.Source, "p1")
	}
	if res.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", res.Confidence)
	}
	if !strings.Contains(res.Answer, "behavior") {
		t.Errorf("Answer = %q, want provider text", res.Answer)
	}
	if res.UsedMemory {
		t.Error("UsedMemory = true, want false")
	}
}

func TestAsk_MissingPrompt(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"  "}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAsk_UnknownPersonality(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"prompt":"hi","personality":"sarcastic"}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q, want invalid_request_error", body.Error.Type)
	}
	if !strings.Contains(body.Error.Message, "sarcastic") {
		t.Errorf("error message = %q, want the personality named", body.Error.Message)
	}
}

func TestAsk_InvalidBody(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{invalid"))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestProviders(t *testing.T) {
	deps := newTestDeps(t, []config.Provider{
		testProvider("alpha", "http://localhost:1", 1, 3),
		testProvider("beta", "http://localhost:2", 2, 0),
	})
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var list []providerInfo
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d providers, want 2", len(list))
	}
	if list[0].Name != "alpha" || list[0].Remaining != 3 {
		t.Errorf("providers[0] = %+v, want alpha with remaining 3", list[0])
	}
	if list[1].Name != "beta" || list[1].Remaining != -1 {
		t.Errorf("providers[1] = %+v, want beta unmetered (-1)", list[1])
	}
	if list[0].Kind != config.KindCustom {
		t.Errorf("providers[0].Kind = %q, want %q", list[0].Kind, config.KindCustom)
	}
}

func TestUsage(t *testing.T) {
	srv := answerServer(t, "fine")
	deps := newTestDeps(t, []config.Provider{testProvider("p1", srv.URL, 1, 10)})
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"anything"}`))
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("ask status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var report usage.Report
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(report.Providers) != 1 {
		t.Fatalf("got %d providers in report, want 1", len(report.Providers))
	}
	if report.Providers[0].CallsToday != 1 {
		t.Errorf("CallsToday = %d, want 1", report.Providers[0].CallsToday)
	}
}

func TestMemoryStats(t *testing.T) {
	deps := newTestDeps(t, nil)
	seedEntry(t, deps.Store, "why do goroutines leak", "They block on channels nobody reads.")
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/memory/stats", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var stats memory.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.TotalEntries != 1 {
		t.Errorf("TotalEntries = %d, want 1", stats.TotalEntries)
	}
}

func TestMemorySearch(t *testing.T) {
	deps := newTestDeps(t, nil)
	seedEntry(t, deps.Store, "why do goroutines leak", "They block on channels nobody reads.")
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/memory/search?q=goroutines+leak", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var entries []memory.Entry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Prompt != "why do goroutines leak" {
		t.Errorf("Prompt = %q", entries[0].Prompt)
	}
}

func TestMemorySearch_MissingQuery(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/memory/search", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMemorySearch_EmptyResultIsArray(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/memory/search?q=nothing+matches+this", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestAdminReload(t *testing.T) {
	deps := newTestDeps(t, nil)
	called := 0
	deps.Reload = func() error {
		called++
		return nil
	}
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/reload", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if called != 1 {
		t.Errorf("reload called %d times, want 1", called)
	}
}

func TestAdminReload_Unavailable(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/reload", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestAdminPrune(t *testing.T) {
	deps := newTestDeps(t, nil)
	seedEntry(t, deps.Store, "fresh question", "fresh answer")
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/prune",
		strings.NewReader(`{"retention_days":1}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var body map[string]int64
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["pruned"] != 0 {
		t.Errorf("pruned = %d, want 0 (entry is fresh)", body["pruned"])
	}
}

type mockSeeder struct {
	seedFn func(ctx context.Context, sources []string) (*ingest.Report, error)
}

func (m *mockSeeder) Seed(ctx context.Context, sources []string) (*ingest.Report, error) {
	return m.seedFn(ctx, sources)
}

func TestAdminSeed(t *testing.T) {
	deps := newTestDeps(t, nil)
	var gotSources []string
	deps.Seeder = &mockSeeder{
		seedFn: func(_ context.Context, sources []string) (*ingest.Report, error) {
			gotSources = sources
			return &ingest.Report{Files: 1, Pairs: 2}, nil
		},
	}
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/seed",
		strings.NewReader(`{"path":"/tmp/faq.txt"}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if len(gotSources) != 1 || gotSources[0] != "/tmp/faq.txt" {
		t.Errorf("sources = %v, want [/tmp/faq.txt]", gotSources)
	}
	var report ingest.Report
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if report.Pairs != 2 {
		t.Errorf("Pairs = %d, want 2", report.Pairs)
	}
}

func TestAdminSeed_MissingSource(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.Seeder = &mockSeeder{
		seedFn: func(_ context.Context, _ []string) (*ingest.Report, error) {
			t.Fatal("seeder called with no sources")
			return nil, nil
		},
	}
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/seed", strings.NewReader(`{}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAdminSeed_Unavailable(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/seed",
		strings.NewReader(`{"path":"/tmp/faq.txt"}`))
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	deps := newTestDeps(t, nil)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("X-Request-ID = %q, want %q", got, "fixed-id")
	}
}
