package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

func defaultCriteria() types.EvaluationCriteria {
	return types.EvaluationCriteria{MinConfidence: 0.6, MinAnswerLength: 10}
}

func TestEvaluate_Passes(t *testing.T) {
	e := New(nil)
	result := types.AgentResult{Success: true, Answer: "The refund window is thirty days from the purchase date."}
	eval := e.Evaluate(result, defaultCriteria())

	assert.True(t, eval.Passed)
	assert.False(t, eval.RetryRecommended)
	assert.Empty(t, eval.Issues)
}

// TestEvaluate_Idempotent covers the invariant that repeated evaluation of
// the same input produces a bitwise-identical verdict: the scoring pass has
// no hidden state or clock dependency.
func TestEvaluate_Idempotent(t *testing.T) {
	e := New(nil)
	result := types.AgentResult{Success: false, Answer: "no information", Error: "503 overloaded"}
	criteria := defaultCriteria()

	first := e.Evaluate(result, criteria)
	second := e.Evaluate(result, criteria)

	assert.Equal(t, first, second)
}

// TestEvaluate_RecommendsRetryOnTransientError covers the "first vector_search
// call throws 503 overloaded" scenario: a failed result whose error message
// matches the transient-error pattern must be flagged for retry.
func TestEvaluate_RecommendsRetryOnTransientError(t *testing.T) {
	e := New(nil)
	result := types.AgentResult{Success: false, Answer: "", Error: "503 overloaded"}
	eval := e.Evaluate(result, defaultCriteria())

	assert.False(t, eval.Passed)
	assert.True(t, eval.RetryRecommended)
	assert.Equal(t, "transient error", eval.RetryReason)
}

// TestEvaluate_RecommendsRetryNearThreshold stacks the too-short, sentinel-
// phrase, and low-relevance deductions (-0.2, -0.15, -0.2) to land the score
// at 0.45, inside the [minConfidence-0.2, minConfidence) retry band without
// the result itself having failed.
func TestEvaluate_RecommendsRetryNearThreshold(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()
	result := types.AgentResult{
		Success:  true,
		Answer:   "not found",
		Metadata: map[string]any{"task": "explain the quarterly compliance reporting requirements"},
	}
	eval := e.Evaluate(result, criteria)

	assert.False(t, eval.Passed)
	assert.InDelta(t, 0.45, eval.Score, 0.001)
	assert.True(t, eval.RetryRecommended)
	assert.Equal(t, "score near threshold", eval.RetryReason)
}

func TestEvaluate_NoRetryWhenFarBelowThreshold(t *testing.T) {
	e := New(nil)
	result := types.AgentResult{Success: false, Answer: "", Error: "validation: unrecognized agent kind"}
	eval := e.Evaluate(result, defaultCriteria())

	assert.False(t, eval.Passed)
	assert.False(t, eval.RetryRecommended)
}

func TestEvaluate_RequiresSources(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()
	criteria.RequireSources = true
	result := types.AgentResult{Success: true, Answer: "A complete answer with no citations attached."}
	eval := e.Evaluate(result, criteria)

	assert.Contains(t, eval.Issues, "missing required sources")
}

func TestEvaluate_ExecutionTimeCapExceeded(t *testing.T) {
	e := New(nil)
	maxTime := 10 * time.Millisecond
	criteria := defaultCriteria()
	criteria.MaxExecutionTime = &maxTime
	result := types.AgentResult{Success: true, Answer: "A fine answer that took too long to produce.", ExecutionTime: 50 * time.Millisecond}
	eval := e.Evaluate(result, criteria)

	assert.Contains(t, eval.Issues, "execution time exceeded cap")
}

func TestEvaluateTask_KeywordOverlap(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()
	task := "What is the escalation policy for enterprise customers?"
	onTopic := types.AgentResult{Success: true, Answer: "The escalation policy for enterprise customers routes to a senior agent within one hour."}
	offTopic := types.AgentResult{Success: true, Answer: "Bananas are a good source of potassium."}

	onTopicEval := e.EvaluateTask(task, onTopic, criteria)
	offTopicEval := e.EvaluateTask(task, offTopic, criteria)

	assert.True(t, onTopicEval.Passed)
	assert.Contains(t, offTopicEval.Issues, "low relevance to task keywords")
}
