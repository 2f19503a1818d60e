// Package llm provides the Chat LLM provider abstraction named by
// SPEC_FULL.md §11.2: a provider-agnostic Provider interface with raw-HTTP
// Anthropic/OpenAI/Ollama backends and a google.golang.org/genai-backed
// Gemini backend, grounded on hector's pkg/llms/{anthropic,openai,ollama,
// gemini}.go. Client adapts a Provider into the small collaborator
// interfaces pkg/orchestration/{agentexec,dag,evaluator,intent,
// orchestrator} each define for themselves.
package llm

import (
	"context"

	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// ProviderConfig configures a single named backend, mirroring hector's
// LLMProviderConfig shape.
type ProviderConfig struct {
	Type        string // "anthropic", "openai", "ollama", "gemini"
	Model       string
	APIKey      string
	Host        string
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds
	MaxRetries  int
	RetryDelay  int // seconds, base delay for exponential backoff
}

// Provider is the Chat LLM contract (SPEC_FULL.md §6): given the running
// conversation and the tools available to the calling agent, produce the
// next assistant turn.
type Provider interface {
	Generate(ctx context.Context, messages []types.AgentMessage, tools []toolregistry.Definition) (types.AgentMessage, error)
	ModelName() string
}

// New constructs the Provider named by cfg.Type.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	case "ollama":
		return newOllamaProvider(cfg)
	case "gemini":
		return newGeminiProvider(cfg)
	default:
		return nil, unsupportedProviderError(cfg.Type)
	}
}
