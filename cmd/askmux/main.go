package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/askmux/internal/config"
)

var version = "dev"

var (
	noColor    bool
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "askmux",
	Short: "Route questions across answer providers with quota-aware memory fallback",
	Long: `askmux routes a question to configured answer providers in priority order,
respecting per-provider daily quotas, falls back to a local memory of past
answers when providers are unavailable, and paraphrases every answer for
variety.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $ASKMUX_CONFIG or ~/.askmux/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the config file path from the --config flag and loads it.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
