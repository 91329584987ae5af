// Package api exposes the orchestration engine over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/askmux/internal/ingest"
	"github.com/kalambet/askmux/internal/memory"
	"github.com/kalambet/askmux/internal/orchestrator"
	"github.com/kalambet/askmux/internal/paraphrase"
	"github.com/kalambet/askmux/internal/provider"
	"github.com/kalambet/askmux/internal/usage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Responder produces an answer for one prompt.
type Responder interface {
	Respond(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// SeedRunner bulk-loads memory entries from files and URLs.
type SeedRunner interface {
	Seed(ctx context.Context, sources []string) (*ingest.Report, error)
}

// Deps holds everything the HTTP surface serves from. Seeder, Reload, and
// MCP are optional; their endpoints answer 503 when absent.
type Deps struct {
	Orchestrator  Responder
	Registry      *provider.Registry
	Tracker       *usage.Tracker
	Store         *memory.Store
	Seeder        SeedRunner
	Reload        func() error
	MCP           http.Handler
	Token         string
	RetentionDays int
}

// NewHandler builds the full route table. Everything except /healthz sits
// behind bearer auth when a token is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", handleHealthz)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/v1/ask", handleAsk(deps))
		r.Get("/v1/providers", handleProviders(deps))
		r.Get("/v1/usage", handleUsage(deps))
		r.Get("/v1/memory/stats", handleMemoryStats(deps))
		r.Get("/v1/memory/search", handleMemorySearch(deps))
		r.Post("/v1/admin/reload", handleReload(deps))
		r.Post("/v1/admin/prune", handlePrune(deps))
		r.Post("/v1/admin/seed", handleSeed(deps))
		if deps.MCP != nil {
			r.Mount("/mcp", deps.MCP)
		}
	})

	return r
}

// requestID tags every request and its response for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type askRequest struct {
	Prompt      string `json:"prompt"`
	Context     string `json:"context"`
	Personality string `json:"personality"`
	MaxChars    int    `json:"max_chars"`
}

type askResponse struct {
	ID               string  `json:"id"`
	Answer           string  `json:"answer"`
	Confidence       float64 `json:"confidence"`
	Source           string  `json:"source"`
	UsedMemory       bool    `json:"used_memory"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	Error            string  `json:"error,omitempty"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}
		if req.Personality != "" && !paraphrase.KnownPersonality(req.Personality) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown personality %q", req.Personality)
			return
		}

		res, err := deps.Orchestrator.Respond(r.Context(), orchestrator.Request{
			Prompt:      req.Prompt,
			Context:     req.Context,
			Personality: req.Personality,
			MaxChars:    req.MaxChars,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "orchestration aborted: %v", err)
			return
		}

		out := askResponse{
			ID:               res.RequestID,
			Answer:           res.FinalAnswer,
			Confidence:       res.Confidence,
			Source:           res.Source,
			UsedMemory:       res.UsedMemory,
			ProcessingTimeMs: res.ProcessingTimeMs,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

type providerInfo struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Model       string  `json:"model"`
	Priority    int     `json:"priority"`
	Enabled     bool    `json:"enabled"`
	DailyLimit  int     `json:"daily_limit"`
	Remaining   int     `json:"remaining"` // -1 when unmetered
	CostPerCall float64 `json:"cost_per_call"`
}

func providerList(reg *provider.Registry, tracker *usage.Tracker) []providerInfo {
	all := reg.All()
	infos := make([]providerInfo, len(all))
	for i, in := range all {
		remaining := tracker.Remaining(in.Name)
		if remaining == math.MaxInt {
			remaining = -1
		}
		infos[i] = providerInfo{
			Name:        in.Name,
			Kind:        in.Kind,
			Model:       in.Model,
			Priority:    in.Priority,
			Enabled:     in.Enabled,
			DailyLimit:  in.DailyLimit,
			Remaining:   remaining,
			CostPerCall: in.CostPerCall,
		}
	}
	return infos
}

func handleProviders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(providerList(deps.Registry, deps.Tracker))
	}
}

func handleUsage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Tracker.Snapshot())
	}
}

func handleMemoryStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading memory stats: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func handleMemorySearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 5, 50)

		entries, err := deps.Store.FindSimilar(query, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "searching memory: %v", err)
			return
		}
		if entries == nil {
			entries = []memory.Entry{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Reload == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "reload not available")
			return
		}
		if err := deps.Reload(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reloading config: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "reloaded"})
	}
}

type pruneRequest struct {
	RetentionDays int `json:"retention_days"`
}

func handlePrune(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		days := deps.RetentionDays
		var req pruneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RetentionDays > 0 {
			days = req.RetentionDays
		}
		if days <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "retention_days is required when no default is configured")
			return
		}

		pruned, err := deps.Store.Prune(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "pruning memory: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"pruned": pruned})
	}
}

type seedRequest struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

func handleSeed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Seeder == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "seeding not available")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req seedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		var sources []string
		if req.Path != "" {
			sources = append(sources, req.Path)
		}
		if req.URL != "" {
			sources = append(sources, req.URL)
		}
		if len(sources) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of path or url is required")
			return
		}

		report, err := deps.Seeder.Seed(r.Context(), sources)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "seeding failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
