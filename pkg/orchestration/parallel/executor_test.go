package parallel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// blockingChatClient never returns until its context is cancelled, standing
// in for an LLM call against a subtask whose deadline is far shorter than
// the call actually takes.
type blockingChatClient struct{}

func (blockingChatClient) Chat(ctx context.Context, _ []types.AgentMessage, _ []toolregistry.Definition) (types.AgentMessage, error) {
	<-ctx.Done()
	return types.AgentMessage{}, ctx.Err()
}

func newDAG(id, description string, timeout *time.Duration) *types.TaskDAG {
	return &types.TaskDAG{
		Tasks: map[string]*types.SubTask{
			id: {ID: id, Description: description, AgentKind: types.AgentRAG, Status: types.StatusPending, Timeout: timeout},
		},
		RootTask:         id,
		ExecutionBatches: [][]string{{id}},
		Parallelism:      types.ParallelismNone,
	}
}

// TestExecuteDAG_Timeout covers a subtask whose per-agent timeout elapses
// before its Agent Executor call returns: the batch must still finish, and
// the failed subtask's error must report the timeout rather than hang.
func TestExecuteDAG_Timeout(t *testing.T) {
	tools := toolregistry.New(nil)
	agents := agentregistry.New(tools)
	executor := agentexec.New(agents, tools, permission.New(), blockingChatClient{}, nil)
	exe := New(executor, nil)

	timeout := 30 * time.Millisecond
	d := newDAG("task_1", "slow task", &timeout)
	cfg := types.DefaultOrchestrationConfig()
	cfg.EnableRetry = false

	results := exe.ExecuteDAG(context.Background(), d, &types.AgentContext{}, cfg, nil)

	require.Contains(t, results, "task_1")
	r := results["task_1"]
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "Task timed out after")
	assert.Equal(t, types.StatusFailed, d.Tasks["task_1"].Status)
}

// flakyEvaluator recommends retry for any failed result, matching the
// evaluator package's transient-error behavior without depending on it.
type flakyEvaluator struct{}

func (flakyEvaluator) Evaluate(result types.AgentResult, _ types.EvaluationCriteria) types.EvaluationResult {
	if result.Success {
		return types.EvaluationResult{Passed: true, Score: 1}
	}
	return types.EvaluationResult{Passed: false, Score: 0.3, RetryRecommended: true, RetryReason: "transient error"}
}

// scriptedChatClient fails the first call with a transient-sounding error
// and succeeds on every call after, modeling the "first vector_search call
// throws 503 overloaded, second succeeds" scenario.
type scriptedChatClient struct {
	mu    sync.Mutex
	calls int
}

func (c *scriptedChatClient) Chat(_ context.Context, _ []types.AgentMessage, _ []toolregistry.Definition) (types.AgentMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 1 {
		return types.AgentMessage{Role: types.RoleAssistant, Content: "503 overloaded"}, assertErr("503 overloaded")
	}
	return types.AgentMessage{Role: types.RoleAssistant, Content: "vector search succeeded"}, nil
}

// assertErr is a tiny error type so the test file needn't import "errors"
// just to build one sentinel message.
type assertErr string

func (e assertErr) Error() string { return string(e) }

// TestExecuteDAG_RetryOnTransientError covers the evaluator-driven retry
// path: a subtask that fails with a transient-looking error is retried and
// the retried run's result is what the DAG ends up recording.
func TestExecuteDAG_RetryOnTransientError(t *testing.T) {
	tools := toolregistry.New(nil)
	agents := agentregistry.New(tools)
	llm := &scriptedChatClient{}
	executor := agentexec.New(agents, tools, permission.New(), llm, nil)
	exe := New(executor, flakyEvaluator{})

	d := newDAG("task_1", "vector_search the knowledge base", nil)
	cfg := types.DefaultOrchestrationConfig()
	cfg.RetryConfig.InitialDelay = time.Millisecond
	cfg.RetryConfig.MaxRetries = 2

	results := exe.ExecuteDAG(context.Background(), d, &types.AgentContext{}, cfg, nil)

	r := results["task_1"]
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.Equal(t, "vector search succeeded", r.Answer)
	assert.Equal(t, 1, d.Tasks["task_1"].RetryCount)
}
