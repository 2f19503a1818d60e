// Package parallel executes a validated TaskDAG batch by batch, fanning out
// each batch's subtasks concurrently (SPEC_FULL.md §4.5). Grounded on
// hector's workflowagent.runParallel for the errgroup + results-channel
// fan-out/fan-in shape, generalized from "all sub-agents get the same
// input" to "each subtask gets its own dependency-extended context,
// timeout, and retry policy".
package parallel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/trace"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

const dependencyContextCharLimit = 2000

// Evaluator is the minimal collaborator used to decide whether a failed
// subtask should be retried inline (Open Question resolution #1).
// Implementations live in pkg/orchestration/evaluator.
type Evaluator interface {
	Evaluate(result types.AgentResult, criteria types.EvaluationCriteria) types.EvaluationResult
}

// Executor runs a TaskDAG's batches.
type Executor struct {
	agents *agentexec.Executor
	eval   Evaluator
}

// New creates an Executor.
func New(agents *agentexec.Executor, eval Evaluator) *Executor {
	return &Executor{agents: agents, eval: eval}
}

// ExecuteDAG runs every batch of d in order, returning the set of subtask
// results keyed by subtask id. It mutates d's SubTask.Status/Result/Error in
// place and records trace events when tc is non-nil.
func (e *Executor) ExecuteDAG(ctx context.Context, d *types.TaskDAG, base *types.AgentContext, cfg types.OrchestrationConfig, tc *trace.ExecutionTrace) map[string]*types.AgentResult {
	results := map[string]*types.AgentResult{}

	for _, batch := range d.ExecutionBatches {
		if tc != nil {
			tc.Record("batch_start", "", map[string]any{"batch": batch})
		}

		if len(batch) == 1 || !cfg.EnableParallel {
			for _, id := range batch {
				e.runOne(ctx, d, id, base, cfg, tc, results)
			}
		} else {
			e.runBatchConcurrent(ctx, d, batch, base, cfg, tc, results)
		}

		if tc != nil {
			tc.Record("batch_done", "", map[string]any{"batch": batch})
		}

		if !cfg.ContinueOnFailure && anyFailed(batch, d) {
			break
		}
	}

	return results
}

func (e *Executor) runBatchConcurrent(ctx context.Context, d *types.TaskDAG, batch []string, base *types.AgentContext, cfg types.OrchestrationConfig, tc *trace.ExecutionTrace, results map[string]*types.AgentResult) {
	g, gctx := errgroup.WithContext(ctx)
	resMu := newResultCollector(results)

	for _, id := range batch {
		id := id
		g.Go(func() error {
			e.runOneInto(gctx, d, id, base, cfg, tc, resMu)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) runOne(ctx context.Context, d *types.TaskDAG, id string, base *types.AgentContext, cfg types.OrchestrationConfig, tc *trace.ExecutionTrace, results map[string]*types.AgentResult) {
	rc := newResultCollector(results)
	e.runOneInto(ctx, d, id, base, cfg, tc, rc)
}

// resultCollector guards concurrent writes into the shared results map.
type resultCollector struct {
	mu sync.Mutex
	m  map[string]*types.AgentResult
}

func newResultCollector(m map[string]*types.AgentResult) *resultCollector {
	return &resultCollector{m: m}
}

func (rc *resultCollector) set(id string, result *types.AgentResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.m[id] = result
}

func (e *Executor) runOneInto(ctx context.Context, d *types.TaskDAG, id string, base *types.AgentContext, cfg types.OrchestrationConfig, tc *trace.ExecutionTrace, rc *resultCollector) {
	st := d.Tasks[id]
	st.Status = types.StatusRunning
	if tc != nil {
		tc.Record("agent_start", id, map[string]any{"agent_kind": st.AgentKind})
	}

	subCtx := buildDependencyContext(*base, d, st)
	timeout := resolveTimeout(st, cfg, st.AgentKind)

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := e.runWithRetry(deadline, st, &subCtx, cfg)

	rc.set(id, &result)
	if result.Success {
		st.Status = types.StatusCompleted
	} else {
		st.Status = types.StatusFailed
		st.Error = result.Error
	}
	st.Result = &result

	if tc != nil {
		tc.Record("agent_done", id, map[string]any{"success": result.Success, "error": result.Error})
	}
}

func (e *Executor) runWithRetry(ctx context.Context, st *types.SubTask, subCtx *types.AgentContext, cfg types.OrchestrationConfig) types.AgentResult {
	result := e.runOnceWithDeadline(ctx, st, subCtx)

	if !cfg.EnableRetry || e.eval == nil {
		return result
	}

	for st.RetryCount < cfg.RetryConfig.MaxRetries {
		evalResult := e.eval.Evaluate(result, cfg.EvaluationCriteria)
		if !evalResult.RetryRecommended {
			return result
		}

		delay := backoffDelay(cfg.RetryConfig, st.RetryCount)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result
		}

		st.RetryCount++
		result = e.runOnceWithDeadline(ctx, st, subCtx)
	}

	return result
}

func backoffDelay(rc types.RetryConfig, retryCount int) time.Duration {
	delay := rc.InitialDelay
	for i := 0; i < retryCount; i++ {
		delay = time.Duration(float64(delay) * rc.BackoffFactor)
	}
	return delay
}

func (e *Executor) runOnceWithDeadline(ctx context.Context, st *types.SubTask, subCtx *types.AgentContext) types.AgentResult {
	type outcome struct {
		result types.AgentResult
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		done <- outcome{result: e.agents.Run(ctx, st.AgentKind, st.Description, subCtx)}
	}()

	select {
	case o := <-done:
		return o.result
	case <-ctx.Done():
		elapsed := time.Since(start)
		return types.AgentResult{
			AgentKind: st.AgentKind, Success: false,
			Error:         fmt.Sprintf("Task timed out after %.0fs", elapsed.Seconds()),
			ExecutionTime: elapsed,
		}
	}
}

func buildDependencyContext(base types.AgentContext, d *types.TaskDAG, st *types.SubTask) types.AgentContext {
	clone := base.Clone()

	var blobs []string
	for _, depID := range st.Dependencies {
		dep, ok := d.Tasks[depID]
		if !ok || dep.Result == nil || !dep.Result.Success {
			continue
		}
		answer := dep.Result.Answer
		if len(answer) > dependencyContextCharLimit {
			answer = answer[:dependencyContextCharLimit]
		}
		blobs = append(blobs, fmt.Sprintf("[Result from previous task %s]\n%s", depID, answer))
	}

	if len(blobs) > 0 {
		joined := ""
		for i, b := range blobs {
			if i > 0 {
				joined += "\n\n"
			}
			joined += b
		}
		if clone.FileContext != "" {
			joined = joined + "\n\n" + clone.FileContext
		}
		clone.FileContext = joined
	}

	return clone
}

func resolveTimeout(st *types.SubTask, cfg types.OrchestrationConfig, kind types.AgentKind) time.Duration {
	if st.Timeout != nil {
		return *st.Timeout
	}
	if cfg.AgentTimeouts != nil {
		if t, ok := cfg.AgentTimeouts[kind]; ok {
			return t
		}
	}
	if t, ok := types.DefaultAgentTimeouts()[kind]; ok {
		return t
	}
	return types.DefaultFallbackTimeout
}

func anyFailed(batch []string, d *types.TaskDAG) bool {
	for _, id := range batch {
		if d.Tasks[id].Status == types.StatusFailed {
			return true
		}
	}
	return false
}
