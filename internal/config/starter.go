package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const starterTemplate = `# askmux configuration.
# Environment overrides: ASKMUX_HOST, ASKMUX_PORT, ASKMUX_API_KEY,
# ASKMUX_DATA_DIR, ASKMUX_PERSONALITY, ASKMUX_CONFIG (file path).

server:
  host: 127.0.0.1
  port: 4600
  # api_key: change-me        # enables bearer auth on the HTTP API

data_dir: ~/.askmux
personality: friendly         # neutral | friendly | formal | playful

paraphrase:
  p_greet: 0.3
  p_confirm: 0.2
  p_connector: 0.5
  p_reorder: 0.3
  max_answer_chars: 4000

memory:
  confidence_floor: 0.6
  fallback_limit: 5
  retention_days: 90
  seed_confidence: 0.7

orchestrator:
  default_confidence: 0.8
  local_fallback_confidence: 0.3

providers:
  - name: openai-main
    kind: openai              # openai | gemini | anthropic | huggingface | local | custom
    model: gpt-4o-mini
    api_key_env: OPENAI_API_KEY
    daily_limit: 200
    priority: 1
    enabled: true
    cost_per_call: 0.002
    timeout_seconds: 30
    max_tokens: 1024
    temperature: 0.7
  - name: ollama
    kind: local
    endpoint: http://localhost:11434
    model: mistral-nemo
    daily_limit: 0            # 0 = unmetered
    priority: 10
    enabled: true
    cost_per_call: 0
    timeout_seconds: 60
    max_tokens: 1024
    temperature: 0.7
`

// WriteDefault materializes a commented starter config at path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterTemplate), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
