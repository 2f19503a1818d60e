package agentexec

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// fakeArgs is a jsonschema-reflectable argument struct shared by fakeTool's
// registrations in this file.
type fakeArgs struct {
	Query   string `json:"query,omitempty"`
	Command string `json:"command,omitempty"`
}

// fakeTool is a minimal toolregistry.Tool. calls records every invocation so
// tests can assert a denied call never reaches Execute.
type fakeTool struct {
	name   string
	output string
	mu     sync.Mutex
	calls  int
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }
func (t *fakeTool) ArgsType() any        { return &fakeArgs{} }

func (t *fakeTool) RequiredArgs() []string {
	return nil
}

func (t *fakeTool) Execute(_ context.Context, _ *types.AgentContext, _ map[string]any) (types.ToolResult, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return types.ToolResult{Success: true, Output: t.output}, nil
}

func (t *fakeTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// scriptedChatClient replays a fixed sequence of responses, one per Chat
// call, and repeats the last entry once exhausted.
type scriptedChatClient struct {
	mu        sync.Mutex
	responses []types.AgentMessage
	calls     int
}

func (c *scriptedChatClient) Chat(_ context.Context, _ []types.AgentMessage, _ []toolregistry.Definition) (types.AgentMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	return c.responses[idx], nil
}

func newTestExecutor(t *testing.T, tools *toolregistry.Registry, llm ChatClient) *Executor {
	t.Helper()
	agents := agentregistry.New(tools)
	return New(agents, tools, permission.New(), llm, nil)
}

// TestRun_DoomLoop covers the "agent repeats the same tool call" scenario:
// the Reason-Act loop must terminate once the same signature has been seen
// DoomLoopThreshold times in a row, without ever reaching HardMaxSteps, and
// must return an answer flagging the repetition.
func TestRun_DoomLoop(t *testing.T) {
	tools := toolregistry.New(nil)
	search := &fakeTool{name: "vector_search", output: "nothing new"}
	tools.Register(search)

	repeat := types.AgentMessage{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "1", Name: "vector_search", Args: map[string]any{"query": "x"}},
		},
	}
	llm := &scriptedChatClient{responses: []types.AgentMessage{repeat, repeat, repeat, repeat}}
	exec := newTestExecutor(t, tools, llm)

	agentCtx := &types.AgentContext{MaxSteps: DefaultMaxSteps}
	result := exec.Run(context.Background(), types.AgentRAG, "repeat yourself", agentCtx)

	require.True(t, result.Success)
	assert.LessOrEqual(t, result.Steps, 4)
	assert.Contains(t, result.Answer, "I noticed I was repeating the same action.")
	assert.Equal(t, 2, search.callCount(), "the third repeated call must be caught before invocation")
}

// TestRun_PermissionDenied covers a Code agent attempting a shell command
// outside its allowlist: the tool must never execute, the loop must
// continue past the denial, and the final answer must still be produced
// from whatever the model does with the "Permission denied" tool result.
func TestRun_PermissionDenied(t *testing.T) {
	tools := toolregistry.New(nil)
	shell := &fakeTool{name: "shell", output: "should never run"}
	tools.Register(shell)

	deniedCall := types.AgentMessage{
		Role:      types.RoleAssistant,
		ToolCalls: []types.ToolCall{{ID: "1", Name: "shell", Args: map[string]any{"command": "rm -rf /"}}},
	}
	final := types.AgentMessage{Role: types.RoleAssistant, Content: "I can't run that command."}
	llm := &scriptedChatClient{responses: []types.AgentMessage{deniedCall, final}}
	exec := newTestExecutor(t, tools, llm)

	agentCtx := &types.AgentContext{MaxSteps: DefaultMaxSteps}
	result := exec.Run(context.Background(), types.AgentCode, "rm -rf /", agentCtx)

	require.True(t, result.Success)
	assert.Equal(t, 0, shell.callCount(), "denied tool must never be invoked")
	require.Len(t, result.ToolResults, 1)
	assert.False(t, result.ToolResults[0].Success)
	assert.Contains(t, result.ToolResults[0].Error, "Permission denied")
	assert.Equal(t, "I can't run that command.", result.Answer)
}

// TestRun_MaxStepsZero covers the max_steps=0 boundary case: a single
// reasoning call with no tool loop at all.
func TestRun_MaxStepsZero(t *testing.T) {
	tools := toolregistry.New(nil)
	llm := &scriptedChatClient{responses: []types.AgentMessage{{Role: types.RoleAssistant, Content: "direct answer"}}}
	exec := newTestExecutor(t, tools, llm)

	agentCtx := &types.AgentContext{MaxSteps: 0}
	result := exec.Run(context.Background(), types.AgentRAG, "quick question", agentCtx)

	require.True(t, result.Success)
	assert.Equal(t, 0, result.Steps)
	assert.Equal(t, "direct answer", result.Answer)
}
