package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/askmux/internal/api"
	"github.com/kalambet/askmux/internal/config"
	"github.com/kalambet/askmux/internal/ingest"
	"github.com/kalambet/askmux/internal/memory"
	"github.com/kalambet/askmux/internal/orchestrator"
	"github.com/kalambet/askmux/internal/paraphrase"
	"github.com/kalambet/askmux/internal/provider"
	"github.com/kalambet/askmux/internal/usage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the askmux server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running askmux server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show askmux system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "askmux.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// usageLimits maps the configured provider set onto tracker limits.
func usageLimits(providers []config.Provider) []usage.Limit {
	limits := make([]usage.Limit, len(providers))
	for i, p := range providers {
		limits[i] = usage.Limit{Name: p.Name, Daily: p.DailyLimit}
	}
	return limits
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "askmux version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.DataDir)
	healthURL := fmt.Sprintf("http://%s:%d/healthz", cfg.Server.Host, cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("askmux is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("askmux is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Usage tracking and the provider registry. The tracker is synced before
	// the registry consults it for eligibility.
	tracker := usage.New(nil)
	tracker.Sync(usageLimits(cfg.Providers))
	registry, err := provider.New(cfg.Providers, tracker)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}
	slog.Info("provider registry ready", "providers", len(cfg.Providers))

	// Open the memory store.
	store, err := memory.Open(cfg.DataDir, cfg.Memory.ConfidenceFloor, nil)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing memory store", "error", err)
		}
	}()

	// Paraphraser and orchestrator.
	para := paraphrase.New(paraphrase.Config{
		PGreet:     cfg.Paraphrase.PGreet,
		PConfirm:   cfg.Paraphrase.PConfirm,
		PConnector: cfg.Paraphrase.PConnector,
		PReorder:   cfg.Paraphrase.PReorder,
	}, nil)
	orch := orchestrator.New(registry, tracker, store, para, orchestrator.Options{
		Personality:             cfg.Personality,
		DefaultConfidence:       cfg.Orchestrator.DefaultConfidence,
		LocalFallbackConfidence: cfg.Orchestrator.LocalFallbackConfidence,
		MemoryLimit:             cfg.Memory.FallbackLimit,
		MaxAnswerChars:          cfg.Paraphrase.MaxAnswerChars,
	}, nil)
	defer orch.Wait()

	seeder := ingest.NewSeeder(store, para, cfg.Personality, cfg.Memory.SeedConfidence)

	// Reload re-reads the config file and swaps the provider set atomically.
	// Server address and data dir changes need a restart.
	reload := func() error {
		next, err := loadConfig()
		if err != nil {
			return err
		}
		if err := registry.Reload(next.Providers); err != nil {
			return err
		}
		tracker.Sync(usageLimits(next.Providers))
		slog.Info("configuration reloaded", "providers", len(next.Providers))
		return nil
	}

	// MCP surface rides the same HTTP server, mounted under /mcp.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: orch,
		Registry:     registry,
		Tracker:      tracker,
		Store:        store,
	})

	handler := api.NewHandler(api.Deps{
		Orchestrator:  orch,
		Registry:      registry,
		Tracker:       tracker,
		Store:         store,
		Seeder:        seeder,
		Reload:        reload,
		MCP:           server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true)),
		Token:         cfg.Server.APIKey,
		RetentionDays: cfg.Memory.RetentionDays,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("askmux listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout. In-flight persists drain via the
	// deferred orch.Wait before the store closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := loadConfig()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("askmux is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop askmux (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to askmux (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	ctx := context.Background()
	client := &apiClient{
		baseURL:    fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port),
		token:      cfg.Server.APIKey,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	resp, err := client.get(ctx, "/healthz")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Personality", "%s", cfg.Personality)
	printStatus("Data dir", "%s", cfg.DataDir)

	if !running {
		printStatus("Providers", "%d configured", len(cfg.Providers))
		return nil
	}

	var providers []providerRow
	if resp, err := client.get(ctx, "/v1/providers"); err == nil {
		if decodeJSON(resp, &providers) == nil {
			enabled := 0
			for _, p := range providers {
				if p.Enabled {
					enabled++
				}
			}
			printStatus("Providers", "%d configured, %d enabled", len(providers), enabled)
		}
	}

	var stats struct {
		TotalEntries      int64  `json:"total_entries"`
		DistinctSources   int64  `json:"distinct_sources"`
		MostCommonKeyword string `json:"most_common_keyword"`
	}
	if resp, err := client.get(ctx, "/v1/memory/stats"); err == nil {
		if decodeJSON(resp, &stats) == nil {
			printStatus("Memory", "%d entries from %d sources", stats.TotalEntries, stats.DistinctSources)
		}
	}

	var report struct {
		MemoryHits int64 `json:"memory_hits"`
	}
	if resp, err := client.get(ctx, "/v1/usage"); err == nil {
		if decodeJSON(resp, &report) == nil {
			printStatus("Memory hits", "%d", report.MemoryHits)
		}
	}

	return nil
}
