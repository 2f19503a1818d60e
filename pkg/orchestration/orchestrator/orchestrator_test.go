package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/dag"
	"github.com/kbagents/orchestrator/pkg/orchestration/evaluator"
	"github.com/kbagents/orchestrator/pkg/orchestration/parallel"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// byTaskChatClient answers each reasoning call with "Answer for: <task>",
// where <task> is the final user message, letting tests tell subtask
// answers apart without any tool-calling machinery.
type byTaskChatClient struct{}

func (byTaskChatClient) Chat(_ context.Context, messages []types.AgentMessage, _ []toolregistry.Definition) (types.AgentMessage, error) {
	task := messages[len(messages)-1].Content
	return types.AgentMessage{Role: types.RoleAssistant, Content: "Answer for: " + task}, nil
}

func newFullOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	tools := toolregistry.New(nil)
	agents := agentregistry.New(tools)
	perms := permission.New()
	executor := agentexec.New(agents, tools, perms, byTaskChatClient{}, nil)
	dagBuilder := dag.New(nil, false)
	parallelExe := parallel.New(executor, evaluator.New(nil))
	eval := evaluator.New(nil)

	return New(agents, tools, perms, executor, nil, dagBuilder, parallelExe, eval, nil, nil, nil, nil, nil, nil)
}

// TestExecuteEnterprise_SynthesisTagReturnsVerbatimAnswer covers the
// comparison-task scenario: a DAG whose root task is tagged as the
// synthesis point must have its answer returned unchanged, without ever
// invoking the (here absent) SynthesisLLM merge step.
func TestExecuteEnterprise_SynthesisTagReturnsVerbatimAnswer(t *testing.T) {
	o := newFullOrchestrator(t)

	req := Request{
		Task:           "Please compare the performance characteristics of python and go for backend services",
		SessionID:      "sess-1",
		IncludeSources: true,
	}
	resp := o.ExecuteEnterprise(context.Background(), req, "user-1")

	require.True(t, resp.Success)
	require.Len(t, resp.SubtaskResults, 3)

	synthTaskID := "task_3"
	synthResult, ok := resp.SubtaskResults[synthTaskID]
	require.True(t, ok)
	assert.Equal(t, synthResult.Answer, resp.Answer)
	assert.Empty(t, resp.PartialFailures)
}

// TestExecute_UnaryHappyPath covers a simple single-agent RAG query: the DAG
// builder's single-question short-circuit produces a one-task DAG, and
// synthesize falls through to returning that lone successful answer as-is.
func TestExecute_UnaryHappyPath(t *testing.T) {
	o := newFullOrchestrator(t)

	req := Request{Task: "What is the refund policy?", SessionID: "sess-2"}
	resp := o.Execute(context.Background(), req, "user-1")

	require.True(t, resp.Success)
	assert.Equal(t, "Answer for: What is the refund policy?", resp.Answer)
	assert.Equal(t, types.AgentRAG, resp.AgentKind)
}

// TestExecuteEnterprise_PipelineDependencyOrdering covers a two-step
// pipeline task: it checks that the task is split into two subtasks and
// that both complete without a partial failure.
func TestExecuteEnterprise_PipelineDependencyOrdering(t *testing.T) {
	o := newFullOrchestrator(t)

	req := Request{
		Task:      "First summarize the onboarding document, then draft a welcome email based on it",
		SessionID: "sess-3",
	}
	resp := o.ExecuteEnterprise(context.Background(), req, "user-1")

	require.True(t, resp.Success)
	require.Len(t, resp.SubtaskResults, 2)
	assert.Empty(t, resp.PartialFailures)
}
