// Package config loads and validates the orchestrator's YAML configuration,
// following hector's config-first convention (pkg/config/config.go) adapted
// to a closed AgentKind model rather than hector's arbitrary named-agent
// graph: agents here are a fixed set of five specialized roles, each bound
// to an LLM provider and a tool set, instead of a user-defined registry.
package config

import (
	"fmt"

	"github.com/kbagents/orchestrator/pkg/observability"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Config is the root configuration structure, loaded via knadh/koanf
// (SPEC_FULL.md §10.1).
type Config struct {
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`

	// AppMode selects "develop" or "product" (apierror.Mode); see
	// apierror.SetAppMode. Overridable by the APP_MODE env var, which this
	// field takes precedence over once loaded.
	AppMode string `yaml:"app_mode,omitempty" json:"app_mode,omitempty"`

	// LLMs are named Chat LLM backends, referenced by AgentLLMs and by the
	// synthesis/next-actions/intent-classification collaborators.
	LLMs map[string]*LLMConfig `yaml:"llms,omitempty" json:"llms,omitempty"`

	// AgentLLMs binds each AgentKind to one of the named LLMs above.
	// Missing entries fall back to "default".
	AgentLLMs map[types.AgentKind]string `yaml:"agent_llms,omitempty" json:"agent_llms,omitempty"`

	// SynthesisLLM and NextActionsLLM name the LLMs backing the
	// Orchestrator's synthesis and next-action-suggestion collaborators.
	// Empty means that collaborator is disabled.
	SynthesisLLM   string `yaml:"synthesis_llm,omitempty" json:"synthesis_llm,omitempty"`
	NextActionsLLM string `yaml:"next_actions_llm,omitempty" json:"next_actions_llm,omitempty"`

	VectorStores map[string]*VectorStoreConfig `yaml:"vector_stores,omitempty" json:"vector_stores,omitempty"`
	Embedders    map[string]*EmbedderConfig    `yaml:"embedders,omitempty" json:"embedders,omitempty"`

	Tools ToolsConfig `yaml:"tools,omitempty" json:"tools,omitempty"`

	Orchestration types.OrchestrationConfig `yaml:"orchestration,omitempty" json:"orchestration,omitempty"`

	Storage      StorageConfig     `yaml:"storage,omitempty" json:"storage,omitempty"`
	Server       ServerConfig      `yaml:"server,omitempty" json:"server,omitempty"`
	Logger       *LoggerConfig     `yaml:"logger,omitempty" json:"logger,omitempty"`
	RateLimiting *RateLimitConfig  `yaml:"rate_limiting,omitempty" json:"rate_limiting,omitempty"`

	// Observability configures OpenTelemetry tracing and Prometheus metrics
	// (pkg/observability), carried over from hector's own config surface
	// unchanged since it is an ambient concern rather than a domain one.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// SetDefaults applies default values across every sub-config, following
// hector's nil-map-initialization-plus-delegated-defaulting pattern.
func (c *Config) SetDefaults() {
	if c.LLMs == nil {
		c.LLMs = make(map[string]*LLMConfig)
	}
	if c.AgentLLMs == nil {
		c.AgentLLMs = make(map[types.AgentKind]string)
	}
	if c.VectorStores == nil {
		c.VectorStores = make(map[string]*VectorStoreConfig)
	}
	if c.Embedders == nil {
		c.Embedders = make(map[string]*EmbedderConfig)
	}
	if c.AppMode == "" {
		c.AppMode = "product"
	}

	for _, llmCfg := range c.LLMs {
		llmCfg.SetDefaults()
	}
	for _, vsCfg := range c.VectorStores {
		vsCfg.SetDefaults()
	}
	for _, embCfg := range c.Embedders {
		embCfg.SetDefaults()
	}

	c.Tools.SetDefaults()
	c.Orchestration = mergeOrchestrationDefaults(c.Orchestration)
	c.Storage.SetDefaults()
	c.Server.SetDefaults()

	if c.Logger == nil {
		c.Logger = &LoggerConfig{}
	}
	c.Logger.SetDefaults()

	if c.RateLimiting == nil {
		c.RateLimiting = &RateLimitConfig{}
	}
	c.RateLimiting.SetDefaults()

	if c.Observability == nil {
		c.Observability = &observability.Config{}
	}
	c.Observability.SetDefaults()
}

// mergeOrchestrationDefaults fills zero-valued fields of cfg from
// types.DefaultOrchestrationConfig(), so a config file only needs to name
// the fields it wants to override.
func mergeOrchestrationDefaults(cfg types.OrchestrationConfig) types.OrchestrationConfig {
	d := types.DefaultOrchestrationConfig()
	if cfg.MaxSubtasks == 0 {
		cfg.MaxSubtasks = d.MaxSubtasks
	}
	if cfg.MaxParallelism == 0 {
		cfg.MaxParallelism = d.MaxParallelism
	}
	if cfg.MaxReActSteps == 0 {
		cfg.MaxReActSteps = d.MaxReActSteps
	}
	if cfg.DoomLoopWindow == 0 {
		cfg.DoomLoopWindow = d.DoomLoopWindow
	}
	if cfg.AgentTimeouts == nil {
		cfg.AgentTimeouts = d.AgentTimeouts
	}
	if cfg.EvaluationCriteria == (types.EvaluationCriteria{}) {
		cfg.EvaluationCriteria = d.EvaluationCriteria
	}
	if cfg.RetryConfig == (types.RetryConfig{}) {
		cfg.RetryConfig = d.RetryConfig
	}
	return cfg
}

// Validate checks the configuration for consistency after defaults have
// been applied.
func (c *Config) Validate() error {
	if c.AppMode != "develop" && c.AppMode != "product" {
		return fmt.Errorf("config: app_mode must be 'develop' or 'product', got %q", c.AppMode)
	}
	for name, llmCfg := range c.LLMs {
		if err := llmCfg.Validate(); err != nil {
			return fmt.Errorf("config: llms.%s: %w", name, err)
		}
	}
	for kind, ref := range c.AgentLLMs {
		if !kind.Valid() {
			return fmt.Errorf("config: agent_llms: unknown agent kind %q", kind)
		}
		if _, ok := c.LLMs[ref]; !ok {
			return fmt.Errorf("config: agent_llms.%s references undefined llm %q", kind, ref)
		}
	}
	for name, vsCfg := range c.VectorStores {
		if err := vsCfg.Validate(); err != nil {
			return fmt.Errorf("config: vector_stores.%s: %w", name, err)
		}
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("config: storage: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config: server: %w", err)
	}
	if c.Logger != nil {
		if err := c.Logger.Validate(); err != nil {
			return fmt.Errorf("config: logger: %w", err)
		}
	}
	if c.RateLimiting != nil {
		if err := c.RateLimiting.Validate(); err != nil {
			return fmt.Errorf("config: rate_limiting: %w", err)
		}
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("config: observability: %w", err)
		}
	}
	return nil
}

// LLMFor resolves the LLM configured for kind, falling back to "default".
func (c *Config) LLMFor(kind types.AgentKind) (*LLMConfig, error) {
	name, ok := c.AgentLLMs[kind]
	if !ok || name == "" {
		name = "default"
	}
	llmCfg, ok := c.LLMs[name]
	if !ok {
		return nil, fmt.Errorf("config: no llm named %q configured for agent kind %q", name, kind)
	}
	return llmCfg, nil
}

// BoolPtr returns a pointer to b, for optional-bool config fields.
func BoolPtr(b bool) *bool { return &b }

// BoolValue dereferences an optional-bool config field, substituting def
// when unset.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
