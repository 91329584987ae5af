package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/askmux/internal/memory"
	"github.com/kalambet/askmux/internal/orchestrator"
	"github.com/kalambet/askmux/internal/paraphrase"
	"github.com/kalambet/askmux/internal/provider"
	"github.com/kalambet/askmux/internal/usage"
)

// MCPDeps holds dependencies for the MCP surface. These are the same
// instances behind the HTTP handlers; both layers observe one tracker and
// one store.
type MCPDeps struct {
	Orchestrator Responder
	Registry     *provider.Registry
	Tracker      *usage.Tracker
	Store        *memory.Store
}

// NewMCPServer creates an MCP server with the askmux tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"askmux",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("askmux — routes questions across configured answer providers with quota-aware fallback to a persisted answer memory."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question. Providers are tried in priority order under their daily quotas; memory serves as fallback."),
			mcp.WithString("prompt", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("personality", mcp.Description("Paraphrasing personality: neutral, friendly, formal, or playful")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("memory_search",
			mcp.WithDescription("Search persisted answers by keyword overlap with the query."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpMemorySearch(deps),
	)

	s.AddTool(
		mcp.NewTool("usage_report",
			mcp.WithDescription("Report per-provider call counts, failures, cost, and remaining daily quota."),
		),
		mcpUsageReport(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"askmux://providers",
			"Configured Providers",
			mcp.WithResourceDescription("Provider configuration with live remaining quota"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProviders(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"askmux://memory/stats",
			"Memory Statistics",
			mcp.WithResourceDescription("Entry count, distinct sources, and most common keyword"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMemoryStats(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		personality := req.GetString("personality", "")
		if personality != "" && !paraphrase.KnownPersonality(personality) {
			return mcpError(fmt.Sprintf("unknown personality %q", personality)), nil
		}

		res, err := deps.Orchestrator.Respond(ctx, orchestrator.Request{
			Prompt:      prompt,
			Personality: personality,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
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
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpMemorySearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		entries, err := deps.Store.FindSimilar(query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUsageReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Tracker.Snapshot())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProviders(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(providerList(deps.Registry, deps.Tracker))
		if err != nil {
			return nil, fmt.Errorf("marshaling providers: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceMemoryStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Store.Stats()
		if err != nil {
			return nil, fmt.Errorf("reading memory stats: %w", err)
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("marshaling stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
