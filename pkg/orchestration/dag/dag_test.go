package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

func TestBuild_SimpleQuestionSingleNode(t *testing.T) {
	b := New(nil, false)
	d, err := b.Build(context.Background(), "What is the refund policy?", types.AgentRAG, "en")
	require.NoError(t, err)

	assert.Len(t, d.Tasks, 1)
	assert.Equal(t, types.ParallelismNone, d.Parallelism)
	assert.Equal(t, [][]string{{"task_1"}}, d.ExecutionBatches)
}

// TestBuild_ComparisonFullParallel covers the comparison-task scenario: a
// long enough task naming two things to compare must split into two
// independent subtasks plus a synthesis subtask depending on both, executed
// in two batches.
func TestBuild_ComparisonFullParallel(t *testing.T) {
	b := New(nil, false)
	task := "Please compare the performance characteristics of python and go for backend services"
	d, err := b.Build(context.Background(), task, types.AgentRAG, "en")
	require.NoError(t, err)

	require.Len(t, d.Tasks, 3)
	assert.Equal(t, types.ParallelismFull, d.Parallelism)
	require.Len(t, d.ExecutionBatches, 2)
	assert.ElementsMatch(t, []string{"task_1", "task_2"}, d.ExecutionBatches[0])
	assert.Equal(t, []string{"task_3"}, d.ExecutionBatches[1])

	synth := d.Tasks[d.RootTask]
	require.NotNil(t, synth)
	assert.True(t, synth.IsSynthesis())
	assert.ElementsMatch(t, []string{"task_1", "task_2"}, synth.Dependencies)
}

// TestBuild_PipelineSplit covers the "first X, then Y" scenario: a two-step
// pipeline where the second subtask depends on the first.
func TestBuild_PipelineSplit(t *testing.T) {
	b := New(nil, false)
	task := "First summarize the onboarding document, then draft a welcome email based on it"
	d, err := b.Build(context.Background(), task, types.AgentRAG, "en")
	require.NoError(t, err)

	require.Len(t, d.Tasks, 2)
	assert.Equal(t, types.ParallelismPipeline, d.Parallelism)
	require.Len(t, d.ExecutionBatches, 2)
	assert.Equal(t, []string{"task_1"}, d.ExecutionBatches[0])
	assert.Equal(t, []string{"task_2"}, d.ExecutionBatches[1])
	assert.Equal(t, []string{"task_1"}, d.Tasks["task_2"].Dependencies)
}

func TestValidate_RejectsDanglingDependency(t *testing.T) {
	d := &types.TaskDAG{
		Tasks: map[string]*types.SubTask{
			"task_1": {ID: "task_1", Dependencies: []string{"task_missing"}},
		},
		ExecutionBatches: [][]string{{"task_1"}},
	}
	err := Validate(d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDAG)
}

func TestValidate_RejectsCycle(t *testing.T) {
	d := &types.TaskDAG{
		Tasks: map[string]*types.SubTask{
			"task_1": {ID: "task_1", Dependencies: []string{"task_2"}},
			"task_2": {ID: "task_2", Dependencies: []string{"task_1"}},
		},
	}
	require.NoError(t, computeBatches(d))
	err := Validate(d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDAG)
}

func TestValidate_RejectsEmptyDAG(t *testing.T) {
	err := Validate(&types.TaskDAG{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDAG)
}
