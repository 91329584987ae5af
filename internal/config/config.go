package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that fails validation. It is fatal at
// startup and on explicit reload, never mid-request.
var ErrInvalid = errors.New("invalid configuration")

// Kind names accepted for a provider entry. Each selects the caller
// implementation bound at registry construction.
const (
	KindOpenAI      = "openai"
	KindGemini      = "gemini"
	KindAnthropic   = "anthropic"
	KindHuggingFace = "huggingface"
	KindLocal       = "local"
	KindCustom      = "custom"
)

var kinds = map[string]bool{
	KindOpenAI:      true,
	KindGemini:      true,
	KindAnthropic:   true,
	KindHuggingFace: true,
	KindLocal:       true,
	KindCustom:      true,
}

// defaultKeyEnv maps a provider kind to the environment variable its API
// key is read from when the entry sets neither api_key nor api_key_env.
var defaultKeyEnv = map[string]string{
	KindOpenAI:      "OPENAI_API_KEY",
	KindGemini:      "GEMINI_API_KEY",
	KindAnthropic:   "ANTHROPIC_API_KEY",
	KindHuggingFace: "HF_API_TOKEN",
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	DataDir      string             `yaml:"data_dir"`
	Personality  string             `yaml:"personality"`
	Paraphrase   ParaphraseConfig   `yaml:"paraphrase"`
	Memory       MemoryConfig       `yaml:"memory"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Providers    []Provider         `yaml:"providers"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type ParaphraseConfig struct {
	PGreet         float64 `yaml:"p_greet"`
	PConfirm       float64 `yaml:"p_confirm"`
	PConnector     float64 `yaml:"p_connector"`
	PReorder       float64 `yaml:"p_reorder"`
	MaxAnswerChars int     `yaml:"max_answer_chars"`
}

type MemoryConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	FallbackLimit   int     `yaml:"fallback_limit"`
	RetentionDays   int     `yaml:"retention_days"`
	SeedConfidence  float64 `yaml:"seed_confidence"`
}

type OrchestratorConfig struct {
	DefaultConfidence       float64 `yaml:"default_confidence"`
	LocalFallbackConfidence float64 `yaml:"local_fallback_confidence"`
}

// Provider is one configured answer-provider. The struct is immutable once
// loaded; the registry replaces the whole set on reload rather than
// mutating entries in place.
type Provider struct {
	Name           string  `yaml:"name"`
	Kind           string  `yaml:"kind"`
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	DailyLimit     int     `yaml:"daily_limit"`
	Priority       int     `yaml:"priority"`
	Enabled        bool    `yaml:"enabled"`
	CostPerCall    float64 `yaml:"cost_per_call"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

// ResolveKey returns the API key for the provider: the inline value if set,
// otherwise the configured environment variable, otherwise the per-kind
// default variable. Empty is acceptable for kinds that need no key.
func (p Provider) ResolveKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	env := p.APIKeyEnv
	if env == "" {
		env = defaultKeyEnv[p.Kind]
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4600,
		},
		DataDir:     defaultDataDir(),
		Personality: "friendly",
		Paraphrase: ParaphraseConfig{
			PGreet:         0.3,
			PConfirm:       0.2,
			PConnector:     0.5,
			PReorder:       0.3,
			MaxAnswerChars: 4000,
		},
		Memory: MemoryConfig{
			ConfidenceFloor: 0.6,
			FallbackLimit:   5,
			RetentionDays:   90,
			SeedConfidence:  0.7,
		},
		Orchestrator: OrchestratorConfig{
			DefaultConfidence:       0.8,
			LocalFallbackConfidence: 0.3,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askmux"
	}
	return filepath.Join(home, ".askmux")
}

// DefaultPath returns the config file location: $ASKMUX_CONFIG if set,
// otherwise ~/.askmux/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("ASKMUX_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads configuration from the YAML file at path, applies ASKMUX_*
// environment overrides, and validates the result. A missing file is not an
// error; defaults plus environment apply. Validation failures are fatal by
// contract: the caller must not start serving with them.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
		}
	case os.IsNotExist(err):
		// Defaults + environment only.
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASKMUX_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ASKMUX_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var ASKMUX_PORT=%q: %v. Using configured value.\n", v, err)
		}
	}
	if v := os.Getenv("ASKMUX_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ASKMUX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ASKMUX_PERSONALITY"); v != "" {
		cfg.Personality = v
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}

// Validate checks every field constraint. All violations wrap ErrInvalid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d outside [1,65535]", ErrInvalid, c.Server.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalid)
	}
	if c.Personality == "" {
		return fmt.Errorf("%w: personality must not be empty", ErrInvalid)
	}
	for _, p := range []struct {
		name string
		val  float64
	}{
		{"paraphrase.p_greet", c.Paraphrase.PGreet},
		{"paraphrase.p_confirm", c.Paraphrase.PConfirm},
		{"paraphrase.p_connector", c.Paraphrase.PConnector},
		{"paraphrase.p_reorder", c.Paraphrase.PReorder},
		{"memory.confidence_floor", c.Memory.ConfidenceFloor},
		{"memory.seed_confidence", c.Memory.SeedConfidence},
		{"orchestrator.default_confidence", c.Orchestrator.DefaultConfidence},
		{"orchestrator.local_fallback_confidence", c.Orchestrator.LocalFallbackConfidence},
	} {
		if p.val < 0 || p.val > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalid, p.name, p.val)
		}
	}
	if c.Paraphrase.MaxAnswerChars < 0 {
		return fmt.Errorf("%w: paraphrase.max_answer_chars must not be negative", ErrInvalid)
	}
	if c.Memory.FallbackLimit < 1 {
		return fmt.Errorf("%w: memory.fallback_limit must be at least 1", ErrInvalid)
	}
	if c.Memory.RetentionDays < 0 {
		return fmt.Errorf("%w: memory.retention_days must not be negative", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		where := fmt.Sprintf("providers[%d]", i)
		if p.Name != "" {
			where = fmt.Sprintf("providers[%d] (%s)", i, p.Name)
		}
		if p.Name == "" {
			return fmt.Errorf("%w: %s: name must not be empty", ErrInvalid, where)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s: duplicate provider name", ErrInvalid, where)
		}
		seen[p.Name] = true
		if !kinds[p.Kind] {
			return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalid, where, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("%w: %s: model must not be empty", ErrInvalid, where)
		}
		switch p.Kind {
		case KindLocal, KindCustom, KindHuggingFace:
			if p.Endpoint == "" {
				return fmt.Errorf("%w: %s: endpoint is required for kind %q", ErrInvalid, where, p.Kind)
			}
		}
		if p.DailyLimit < 0 {
			return fmt.Errorf("%w: %s: daily_limit must not be negative", ErrInvalid, where)
		}
		if p.CostPerCall < 0 {
			return fmt.Errorf("%w: %s: cost_per_call must not be negative", ErrInvalid, where)
		}
		if p.TimeoutSeconds <= 0 {
			return fmt.Errorf("%w: %s: timeout_seconds must be positive", ErrInvalid, where)
		}
		if p.MaxTokens <= 0 {
			return fmt.Errorf("%w: %s: max_tokens must be positive", ErrInvalid, where)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("%w: %s: temperature %v outside [0,2]", ErrInvalid, where, p.Temperature)
		}
	}
	return nil
}

// Redacted returns a copy safe for display: secrets blanked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Server.APIKey != "" {
		out.Server.APIKey = "<redacted>"
	}
	out.Providers = make([]Provider, len(c.Providers))
	copy(out.Providers, c.Providers)
	for i := range out.Providers {
		if out.Providers[i].APIKey != "" {
			out.Providers[i].APIKey = "<redacted>"
		}
	}
	return &out
}
