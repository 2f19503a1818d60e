package parallel

import (
	"context"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// idleReadDeadline bounds how long the interleaved stream multiplexer will
// wait for the next chunk from any producer before giving up on the whole
// batch (Open Question resolution #3).
const idleReadDeadline = 300 * time.Second

// StreamChunk tags an agentexec.Chunk with the subtask that produced it.
type StreamChunk struct {
	TaskID string
	Chunk  agentexec.Chunk
}

// StreamDAG runs every batch of d in order, same as ExecuteDAG, but returns
// a channel of subtask-tagged chunks interleaved in arrival order within
// each concurrent batch. The channel is closed once every batch has
// finished, or right after the first batch with a failed subtask when
// ContinueOnFailure is off.
func (e *Executor) StreamDAG(ctx context.Context, d *types.TaskDAG, base *types.AgentContext, cfg types.OrchestrationConfig) <-chan StreamChunk {
	out := make(chan StreamChunk, 64)

	go func() {
		defer close(out)
		rc := newResultCollector(map[string]*types.AgentResult{})

		for _, batch := range d.ExecutionBatches {
			out <- StreamChunk{Chunk: agentexec.Chunk{Kind: "batch_start"}}

			if len(batch) == 1 || !cfg.EnableParallel {
				for _, id := range batch {
					e.streamOne(ctx, d, id, base, cfg, out, rc)
				}
			} else {
				e.streamBatch(ctx, d, batch, base, cfg, out, rc)
			}

			out <- StreamChunk{Chunk: agentexec.Chunk{Kind: "batch_done"}}

			if !cfg.ContinueOnFailure && anyFailed(batch, d) {
				return
			}
		}
	}()

	return out
}

func (e *Executor) streamBatch(ctx context.Context, d *types.TaskDAG, batch []string, base *types.AgentContext, cfg types.OrchestrationConfig, out chan<- StreamChunk, rc *resultCollector) {
	shared := make(chan StreamChunk, len(batch)*8)
	done := make(chan struct{})
	remaining := len(batch)

	for _, id := range batch {
		id := id
		go func() {
			e.produceStream(ctx, d, id, base, cfg, shared, rc)
			done <- struct{}{}
		}()
	}

	go func() {
		for i := 0; i < remaining; i++ {
			<-done
		}
		close(shared)
	}()

	for {
		select {
		case chunk, ok := <-shared:
			if !ok {
				return
			}
			out <- chunk
		case <-time.After(idleReadDeadline):
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Executor) streamOne(ctx context.Context, d *types.TaskDAG, id string, base *types.AgentContext, cfg types.OrchestrationConfig, out chan<- StreamChunk, rc *resultCollector) {
	e.produceStream(ctx, d, id, base, cfg, out, rc)
}

func (e *Executor) produceStream(ctx context.Context, d *types.TaskDAG, id string, base *types.AgentContext, cfg types.OrchestrationConfig, out chan<- StreamChunk, rc *resultCollector) {
	st := d.Tasks[id]
	st.Status = types.StatusRunning
	out <- StreamChunk{TaskID: id, Chunk: agentexec.Chunk{Kind: "agent_start"}}

	subCtx := buildDependencyContext(*base, d, st)
	timeout := resolveTimeout(st, cfg, st.AgentKind)
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chunks := e.agents.RunStreaming(deadline, st.AgentKind, st.Description, &subCtx)
	var final types.AgentResult
	var sources []types.Source
	timedOut := false

loop:
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			out <- StreamChunk{TaskID: id, Chunk: c}
			switch c.Kind {
			case agentexec.ChunkSources:
				for _, s := range c.Sources {
					sources = append(sources, types.Source{Source: s})
				}
			case agentexec.ChunkDone:
				final = types.AgentResult{Answer: c.Text, AgentKind: st.AgentKind, Sources: sources, Success: true}
			case agentexec.ChunkError:
				final = types.AgentResult{AgentKind: st.AgentKind, Success: false, Error: c.Err}
			}
		case <-deadline.Done():
			timedOut = true
			break loop
		}
	}

	if timedOut {
		final = types.AgentResult{AgentKind: st.AgentKind, Success: false, Error: "Task timed out after " + timeout.String()}
		out <- StreamChunk{TaskID: id, Chunk: agentexec.Chunk{Kind: "agent_done", Err: "timeout"}}
	} else {
		out <- StreamChunk{TaskID: id, Chunk: agentexec.Chunk{Kind: "agent_done"}}
	}

	rc.set(id, &final)
	st.Result = &final
	if final.Success {
		st.Status = types.StatusCompleted
	} else {
		st.Status = types.StatusFailed
		st.Error = final.Error
	}
}
