package writer

import (
	"context"
	"log/slog"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/trace"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// TraceBatchSize and TraceFlushInterval are the Trace Writer's fixed batch
// size and timer, per SPEC_FULL.md §4.9.
const (
	TraceBatchSize     = 100
	TraceFlushInterval = 5 * time.Second
)

// TraceRecord is one persisted execution trace.
type TraceRecord struct {
	TraceID   string
	SessionID string
	UserID    string
	DAG       *types.TaskDAG
	Events    []trace.Event
	StartTime time.Time
	EndTime   time.Time
	TotalTime time.Duration
}

// TraceWriter buffers completed ExecutionTrace records for bulk insert.
type TraceWriter struct {
	*Buffered[TraceRecord]
}

// NewTraceWriter creates a TraceWriter backed by repo.
func NewTraceWriter(repo Repository[TraceRecord], log *slog.Logger) *TraceWriter {
	return &TraceWriter{Buffered: NewBuffered[TraceRecord]("trace", TraceBatchSize, repo, log, nil)}
}

// Record converts an ExecutionTrace into a TraceRecord and enqueues it.
func (w *TraceWriter) Record(traceID, sessionID, userID string, tc *trace.ExecutionTrace) {
	w.Enqueue(context.Background(), TraceRecord{
		TraceID: traceID, SessionID: sessionID, UserID: userID,
		DAG: tc.DAG, Events: tc.Snapshot(), StartTime: tc.StartTime, EndTime: tc.EndTime, TotalTime: tc.TotalTime,
	})
}
