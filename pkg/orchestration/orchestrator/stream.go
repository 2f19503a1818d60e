package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/trace"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// StreamEvent is one item of a streamed orchestration: either a raw
// per-subtask progress chunk, or (as the final event) the completed
// Response once synthesis and next-action generation have run.
type StreamEvent struct {
	TaskID   string
	Chunk    agentexec.Chunk
	Response *Response
}

// Stream runs the streaming path (SPEC_FULL.md §4.8/§6): single-agent tasks
// stream the Reason-Act loop directly; multi-agent tasks stream interleaved
// per-subtask chunks from the Parallel Executor, then emit one final event
// carrying the synthesized Response.
func (o *Orchestrator) Stream(ctx context.Context, req Request, userID string) <-chan StreamEvent {
	return o.stream(ctx, req, userID, false)
}

// StreamEnterprise always takes the multi-agent DAG path.
func (o *Orchestrator) StreamEnterprise(ctx context.Context, req Request, userID string) <-chan StreamEvent {
	return o.stream(ctx, req, userID, true)
}

func (o *Orchestrator) stream(ctx context.Context, req Request, userID string, forceMultiAgent bool) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)

		start := time.Now()
		tc := trace.NewExecutionTrace()

		cfg := types.DefaultOrchestrationConfig()
		if req.Config != nil {
			cfg = *req.Config
		}

		fileContext := req.FileContext
		urlSource := ""
		if req.URLContext != "" && o.webFetcher != nil {
			if content, err := o.webFetcher.Fetch(ctx, req.URLContext); err == nil {
				fileContext = strings.TrimSpace(fileContext + "\n\n" + truncateWithEllipsis(content, urlContextCharLimit))
				urlSource = req.URLContext
			}
		}

		agentKind := req.AgentKind
		if !agentKind.Valid() {
			agentKind = ClassifyTask(req.Task)
		}

		base := &types.AgentContext{
			SessionID: req.SessionID, UserID: userID, Language: req.Language, MaxSteps: req.MaxSteps,
			FileContext: fileContext, URLContext: req.URLContext, URLSource: urlSource,
		}

		var intentResult *types.IntentResult
		if o.classifier != nil {
			r := o.classifier.Classify(ctx, req.Task, agentKind)
			intentResult = &r
			base.Intent = intentResult
		}

		multiAgent := forceMultiAgent || cfg.EnableMultiAgent
		if !multiAgent {
			o.streamSingleAgent(ctx, out, tc, start, req, userID, agentKind, intentResult)
			return
		}

		d, err := o.dagBuilder.Build(ctx, req.Task, agentKind, req.Language)
		if err != nil {
			d = singleNodeFallback(req.Task, agentKind)
			tc.Record("dag_fallback", "", map[string]any{"error": err.Error()})
		}
		tc.DAG = d

		for ev := range o.parallelExe.StreamDAG(ctx, d, base, cfg) {
			select {
			case out <- StreamEvent{TaskID: ev.TaskID, Chunk: ev.Chunk}:
			case <-ctx.Done():
				return
			}
		}

		results := map[string]*types.AgentResult{}
		for id, st := range d.Tasks {
			if st.Result != nil {
				results[id] = st.Result
			} else {
				results[id] = &types.AgentResult{AgentKind: st.AgentKind, Success: false, Error: "no result produced"}
			}
		}

		resp := o.finishMultiAgent(ctx, tc, start, req, userID, agentKind, intentResult, d, results, cfg)
		out <- StreamEvent{Response: &resp}
	}()
	return out
}

func (o *Orchestrator) streamSingleAgent(ctx context.Context, out chan<- StreamEvent, tc *trace.ExecutionTrace, start time.Time, req Request, userID string, kind types.AgentKind, intentResult *types.IntentResult) {
	var final *types.AgentResult
	var sources []types.Source
	for chunk := range o.executor.RunStreaming(ctx, kind, req.Task, &types.AgentContext{SessionID: req.SessionID, UserID: userID, Language: req.Language, MaxSteps: req.MaxSteps, FileContext: req.FileContext, URLContext: req.URLContext, Intent: intentResult}) {
		select {
		case out <- StreamEvent{Chunk: chunk}:
		case <-ctx.Done():
			return
		}
		switch chunk.Kind {
		case agentexec.ChunkSources:
			for _, s := range chunk.Sources {
				sources = append(sources, types.Source{Source: s})
			}
		case agentexec.ChunkDone:
			final = &types.AgentResult{AgentKind: kind, Success: true, Answer: chunk.Text, Sources: sources}
		case agentexec.ChunkError:
			final = &types.AgentResult{AgentKind: kind, Success: false, Error: chunk.Err}
		}
	}

	tc.Finish()
	elapsed := time.Since(start)
	if final == nil {
		final = &types.AgentResult{AgentKind: kind, Success: false, Error: "stream ended without a result"}
	}

	resp := Response{
		Answer: final.Answer, AgentKind: kind, SessionID: req.SessionID, Steps: final.Steps,
		ExecutionTime: elapsed, Success: final.Success, Trace: tc.Snapshot(),
	}
	if req.IncludeSources {
		resp.Sources = final.Sources
	}
	o.logQuery(req, userID, kind, intentResult, elapsed, final.Success, final.Answer)
	o.recordTrace(req, userID, tc)
	out <- StreamEvent{Response: &resp}
}
