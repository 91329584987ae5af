package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/askmux/internal/config"
	"github.com/kalambet/askmux/internal/provider"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question through the provider chain",
	Long: `Ask a question. Providers are tried in priority order under their daily
quotas; when none can answer, the local answer memory serves as fallback.

Examples:
  askmux ask "how do goroutines differ from threads?"
  askmux ask --personality formal "explain mutexes"
  askmux ask --context "we deploy on Kubernetes" "how should I roll out config changes?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		personality, _ := cmd.Flags().GetString("personality")
		extra, _ := cmd.Flags().GetString("context")
		maxChars, _ := cmd.Flags().GetInt("max-chars")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"prompt": strings.Join(args, " ")}
		if personality != "" {
			req["personality"] = personality
		}
		if extra != "" {
			req["context"] = extra
		}
		if maxChars > 0 {
			req["max_chars"] = maxChars
		}

		resp, err := client.post(cmd.Context(), "/v1/ask", req)
		if err != nil {
			return err
		}

		var result struct {
			Answer           string  `json:"answer"`
			Confidence       float64 `json:"confidence"`
			Source           string  `json:"source"`
			UsedMemory       bool    `json:"used_memory"`
			ProcessingTimeMs int64   `json:"processing_time_ms"`
			Error            string  `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		printStatus("Source", "%s (confidence %.2f, %dms)", result.Source, result.Confidence, result.ProcessingTimeMs)
		if result.Error != "" {
			printWarning("answer returned unparaphrased: %s", result.Error)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("personality", "", "paraphrasing personality (neutral, friendly, formal, playful)")
	askCmd.Flags().String("context", "", "extra context the providers should consider")
	askCmd.Flags().Int("max-chars", 0, "answer length bound in characters")
}

// --- providers ---

type providerRow struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Model       string  `json:"model"`
	Priority    int     `json:"priority"`
	Enabled     bool    `json:"enabled"`
	DailyLimit  int     `json:"daily_limit"`
	Remaining   int     `json:"remaining"`
	CostPerCall float64 `json:"cost_per_call"`
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers with remaining quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/providers")
		if err != nil {
			return err
		}

		var rows []providerRow
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("No providers configured.")
			return nil
		}

		for _, p := range rows {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			quota := "unmetered"
			if p.DailyLimit > 0 {
				quota = fmt.Sprintf("%d/%d left", p.Remaining, p.DailyLimit)
			}
			fmt.Printf("%s  priority %d  %s  %s  %s (%s)\n",
				colorize(colorBold, p.Name), p.Priority, p.Kind, state, quota, p.Model)
		}
		return nil
	},
}

var providersProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check provider endpoint reachability (no quota consumed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reg, err := provider.New(cfg.Providers, nil)
		if err != nil {
			return err
		}

		enabled := make([]*provider.Instance, 0, len(cfg.Providers))
		for _, in := range reg.All() {
			if in.Enabled {
				enabled = append(enabled, in)
			}
		}
		if len(enabled) == 0 {
			fmt.Println("No enabled providers to probe.")
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		for _, res := range provider.Probe(ctx, enabled) {
			if res.Reachable {
				printSuccess("%s (%s) reachable in %dms", res.Name, res.Kind, res.Latency.Milliseconds())
			} else {
				printError("%s (%s) unreachable: %v", res.Name, res.Kind, res.Err)
			}
		}
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersProbeCmd)
}

// --- usage ---

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-provider call counts, cost, and remaining quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/usage")
		if err != nil {
			return err
		}

		var report struct {
			Providers []struct {
				Name       string  `json:"name"`
				CallsToday int     `json:"calls_today"`
				DailyLimit int     `json:"daily_limit"`
				Remaining  int     `json:"remaining"`
				TotalCalls int64   `json:"total_calls"`
				Failures   int64   `json:"failures"`
				TotalCost  float64 `json:"total_cost"`
			} `json:"providers"`
			MemoryHits int64 `json:"memory_hits"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if len(report.Providers) == 0 {
			fmt.Println("No usage recorded.")
			return nil
		}

		for _, p := range report.Providers {
			quota := "unmetered"
			if p.DailyLimit > 0 {
				quota = fmt.Sprintf("%d remaining of %d", p.Remaining, p.DailyLimit)
			}
			fmt.Printf("%s  today %d (%s)  total %d  failures %d  cost $%.4f\n",
				colorize(colorBold, p.Name), p.CallsToday, quota, p.TotalCalls, p.Failures, p.TotalCost)
		}
		fmt.Printf("memory hits: %d\n", report.MemoryHits)
		return nil
	},
}

// --- memory ---

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or prune the answer memory",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search remembered answers by keyword overlap",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/memory/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var entries []struct {
			ID                int64   `json:"id"`
			Prompt            string  `json:"prompt"`
			ParaphrasedAnswer string  `json:"paraphrased_answer"`
			SourceProvider    string  `json:"source_provider"`
			Confidence        float64 `json:"confidence"`
			CreatedAt         string  `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No matching entries.")
			return nil
		}

		for i, e := range entries {
			fmt.Printf("\n%s [#%d, %s, confidence %.2f]\n",
				colorize(colorBold, fmt.Sprintf("Result %d", i+1)), e.ID, e.SourceProvider, e.Confidence)
			fmt.Printf("  Q: %s\n", truncate(e.Prompt, 120))
			fmt.Printf("  A: %s\n", truncate(e.ParaphrasedAnswer, 500))
		}
		return nil
	},
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show answer memory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/memory/stats")
		if err != nil {
			return err
		}

		var stats struct {
			TotalEntries      int64  `json:"total_entries"`
			DistinctSources   int64  `json:"distinct_sources"`
			MostCommonKeyword string `json:"most_common_keyword"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Entries", "%d", stats.TotalEntries)
		printStatus("Sources", "%d", stats.DistinctSources)
		if stats.MostCommonKeyword != "" {
			printStatus("Top keyword", "%s", stats.MostCommonKeyword)
		}
		return nil
	},
}

var memoryPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete entries older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes old memory entries. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{}
		if days > 0 {
			body["retention_days"] = days
		}
		resp, err := client.post(cmd.Context(), "/v1/admin/prune", body)
		if err != nil {
			return err
		}

		var result map[string]int64
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Pruned %d entries", result["pruned"])
		return nil
	},
}

func init() {
	memorySearchCmd.Flags().Int("limit", 5, "maximum number of results")
	memoryPruneCmd.Flags().Int("days", 0, "retention window in days (default: configured value)")
	memoryPruneCmd.Flags().Bool("confirm", false, "confirm pruning")
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryPruneCmd)
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed <file-or-url>...",
	Short: "Bulk-load Q/A pairs into the answer memory",
	Long: `Seed the answer memory from text or markdown files with "Q:"/"A:" pairs,
PDFs, or web pages.

Examples:
  askmux seed ./faq.md
  askmux seed ./handbook.pdf https://example.com/faq`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		totalPairs, totalFailures := 0, 0
		for _, source := range args {
			printStep("Seeding %s...", source)
			body := map[string]any{}
			if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
				body["url"] = source
			} else {
				abs, err := absPath(source)
				if err != nil {
					printError("resolving %s: %v", source, err)
					totalFailures++
					continue
				}
				body["path"] = abs
			}

			resp, err := client.post(cmd.Context(), "/v1/admin/seed", body)
			if err != nil {
				return err
			}

			var report struct {
				Files    int `json:"files"`
				Pairs    int `json:"pairs"`
				Failures int `json:"failures"`
			}
			if err := decodeJSON(resp, &report); err != nil {
				printError("seeding %s: %v", source, err)
				totalFailures++
				continue
			}
			totalPairs += report.Pairs
			totalFailures += report.Failures
		}

		if totalFailures > 0 {
			printWarning("Seeded %d pairs with %d failures", totalPairs, totalFailures)
		} else {
			printSuccess("Seeded %d pairs", totalPairs)
		}
		return nil
	},
}

// absPath resolves a source path for the server, which runs with its own
// working directory.
func absPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		printSuccess("Wrote starter config to %s", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
