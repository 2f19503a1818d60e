package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

func TestConfig_SetDefaults_FillsAppModeAndMaps(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "product", cfg.AppMode)
	assert.NotNil(t, cfg.LLMs)
	assert.NotNil(t, cfg.AgentLLMs)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, types.DefaultOrchestrationConfig().MaxSubtasks, cfg.Orchestration.MaxSubtasks)
}

func TestConfig_Validate_RejectsUnknownAgentLLMBinding(t *testing.T) {
	cfg := &Config{
		LLMs: map[string]*LLMConfig{
			"default": {Provider: "anthropic", APIKey: "sk-test"},
		},
		AgentLLMs: map[types.AgentKind]string{
			types.AgentRAG: "missing",
		},
	}
	cfg.SetDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestConfig_Validate_RejectsUnknownAgentKind(t *testing.T) {
	cfg := &Config{
		LLMs: map[string]*LLMConfig{
			"default": {Provider: "anthropic", APIKey: "sk-test"},
		},
		AgentLLMs: map[types.AgentKind]string{
			types.AgentKind("unknown"): "default",
		},
	}
	cfg.SetDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent kind")
}

func TestConfig_LLMFor_FallsBackToDefault(t *testing.T) {
	cfg := &Config{
		LLMs: map[string]*LLMConfig{
			"default": {Provider: "anthropic", Model: "claude-sonnet-4-20250514", APIKey: "sk-test"},
		},
	}
	cfg.SetDefaults()

	resolved, err := cfg.LLMFor(types.AgentRAG)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", resolved.Model)
}

func TestConfig_LLMFor_UsesBoundOverride(t *testing.T) {
	cfg := &Config{
		LLMs: map[string]*LLMConfig{
			"default": {Provider: "anthropic", APIKey: "sk-a"},
			"planner": {Provider: "openai", Model: "gpt-4o", APIKey: "sk-b"},
		},
		AgentLLMs: map[types.AgentKind]string{
			types.AgentPlanner: "planner",
		},
	}
	cfg.SetDefaults()

	resolved, err := cfg.LLMFor(types.AgentPlanner)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resolved.Model)
}

func TestConfig_Validate_RejectsBadAppMode(t *testing.T) {
	cfg := &Config{AppMode: "staging"}
	cfg.SetDefaults()
	cfg.AppMode = "staging"
	err := cfg.Validate()
	require.Error(t, err)
}
