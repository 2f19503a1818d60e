// Package trace implements the execution trace event log described by
// SPEC_FULL.md §3: an ordered, flat log of every batch/agent/tool/evaluation
// event within one orchestration run, persisted verbatim by the trace
// writer. ExecutionTrace is the only trace mechanism this package provides;
// request-level span/latency observability for the HTTP surface is handled
// separately by pkg/observability's OpenTelemetry tracer.
package trace

import (
	"sync"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Event is one entry in an ExecutionTrace's ordered log.
type Event struct {
	Name      string
	TaskID    string
	Data      map[string]any
	Timestamp time.Time
}

// ExecutionTrace is the DAG plus the ordered event log for one orchestration
// run, as described by SPEC_FULL.md §3.
type ExecutionTrace struct {
	mu sync.Mutex

	DAG               *types.TaskDAG
	Events            []Event
	Evaluations       map[string]types.EvaluationResult
	NextActions       []string
	SynthesisMetadata map[string]any
	StartTime         time.Time
	EndTime           time.Time
	TotalTime         time.Duration
}

// NewExecutionTrace starts a trace with StartTime set to now.
func NewExecutionTrace() *ExecutionTrace {
	return &ExecutionTrace{
		Evaluations:       map[string]types.EvaluationResult{},
		SynthesisMetadata: map[string]any{},
		StartTime:         time.Now(),
	}
}

// Record appends an event to the trace's ordered log. Safe for concurrent
// use by multiple subtask goroutines within a batch.
func (t *ExecutionTrace) Record(name, taskID string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Events = append(t.Events, Event{Name: name, TaskID: taskID, Data: data, Timestamp: time.Now()})
}

// RecordEvaluation stores an evaluation result for a given task id.
func (t *ExecutionTrace) RecordEvaluation(taskID string, result types.EvaluationResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Evaluations[taskID] = result
}

// Finish stamps EndTime/TotalTime; it does not append an event.
func (t *ExecutionTrace) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.EndTime = time.Now()
	t.TotalTime = t.EndTime.Sub(t.StartTime)
}

// Snapshot returns a serialization-friendly copy of the event log.
func (t *ExecutionTrace) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.Events))
	copy(out, t.Events)
	return out
}
