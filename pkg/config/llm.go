package config

import (
	"fmt"
	"os"

	"github.com/kbagents/orchestrator/pkg/llm"
)

// LLMConfig configures a named Chat LLM backend, adapted from hector's
// LLMConfig (pkg/config/llm.go) onto llm.ProviderConfig's field set.
type LLMConfig struct {
	Provider    string  `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"description=anthropic/openai/gemini/ollama"`
	Model       string  `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	TimeoutSec  int     `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MaxRetries  int     `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelay  int     `yaml:"retry_delay_seconds,omitempty" json:"retry_delay_seconds,omitempty"`
}

var defaultModelByProvider = map[string]string{
	"anthropic": "claude-sonnet-4-20250514",
	"openai":    "gpt-4o",
	"gemini":    "gemini-2.0-flash",
	"ollama":    "llama3.2",
}

// SetDefaults fills in provider auto-detection, a default model per
// provider, and a default API key pulled from the environment.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}
	if c.Model == "" {
		c.Model = defaultModelByProvider[c.Provider]
	}
	if c.APIKey == "" {
		c.APIKey = getAPIKeyFromEnv(c.Provider)
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 1
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "anthropic", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("invalid provider %q (valid: anthropic, openai, gemini, ollama)", c.Provider)
	}
	if c.Provider != "ollama" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// ToProviderConfig converts to the shape llm.New expects.
func (c *LLMConfig) ToProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Type:        c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		Host:        c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.TimeoutSec,
		MaxRetries:  c.MaxRetries,
		RetryDelay:  c.RetryDelay,
	}
}

func detectProviderFromEnv() string {
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return "anthropic"
	case os.Getenv("OPENAI_API_KEY") != "":
		return "openai"
	case os.Getenv("GEMINI_API_KEY") != "", os.Getenv("GOOGLE_API_KEY") != "":
		return "gemini"
	default:
		return "anthropic"
	}
}

func getAPIKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
