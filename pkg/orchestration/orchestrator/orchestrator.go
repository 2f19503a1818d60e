// Package orchestrator is the entry component: it classifies intent,
// decomposes a task into a DAG (when multi-agent is enabled), dispatches
// execution, synthesizes a final answer, and recommends next actions
// (SPEC_FULL.md §4.8). Grounded on original_source's AgentOrchestrator,
// specifically execute_enterprise/_synthesize_results/_generate_next_actions.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/dag"
	"github.com/kbagents/orchestrator/pkg/orchestration/evaluator"
	"github.com/kbagents/orchestrator/pkg/orchestration/intent"
	"github.com/kbagents/orchestrator/pkg/orchestration/parallel"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/trace"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// SynthesisLLM merges per-subtask answers into one coherent reply.
type SynthesisLLM interface {
	Synthesize(ctx context.Context, originalTask, combined, language string) (string, error)
}

// NextActionLLM suggests 2-3 follow-up questions or actions.
type NextActionLLM interface {
	SuggestNextActions(ctx context.Context, originalTask, answer, language string) (string, error)
}

// WebFetcher fetches and extracts text content from a URL.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// QueryLogRecord is what gets submitted to the background query-log writer
// after each request.
type QueryLogRecord struct {
	QueryText       string
	UserID          string
	SessionID       string
	AgentKind       types.AgentKind
	IntentType      string
	Category        string
	Language        string
	ExecutionTimeMS int64
	Success         bool
	ResponseSummary string
}

// QueryLogger submits a completed request's summary for background
// persistence (and eventual FAQ sync). Implementations live in pkg/faq and
// pkg/orchestration/writer.
type QueryLogger interface {
	LogQuery(ctx context.Context, rec QueryLogRecord)
}

// TraceLogger submits a completed request's full execution trace for
// background persistence, satisfied by writer.TraceWriter.
type TraceLogger interface {
	Record(traceID, sessionID, userID string, tc *trace.ExecutionTrace)
}

const urlContextCharLimit = 10 * 1024

var allTasksFailedMessage = map[string]string{
	"en": "All tasks failed. Please try again later.",
	"ko": "모든 작업이 실패했습니다. 나중에 다시 시도해주세요.",
	"ja": "すべてのタスクが失敗しました。後でもう一度お試しください。",
}

// Orchestrator is the entry component.
type Orchestrator struct {
	agents      *agentregistry.Registry
	tools       *toolregistry.Registry
	perms       *permission.Manager
	executor    *agentexec.Executor
	classifier  *intent.Classifier
	dagBuilder  *dag.Builder
	parallelExe *parallel.Executor
	eval        *evaluator.Evaluator
	synthEval   *evaluator.SynthesisEvaluator

	synthesisLLM   SynthesisLLM
	nextActionsLLM NextActionLLM
	webFetcher     WebFetcher
	queryLogger    QueryLogger
	agentKindLLM   AgentKindLLM
	traceLogger    TraceLogger
}

// New creates an Orchestrator. Any of synthesisLLM, nextActionsLLM,
// webFetcher, queryLogger, agentKindLLM, traceLogger may be nil; each
// degrades gracefully. perms may be nil, in which case ListTools returns
// every registered tool regardless of caller.
func New(
	agents *agentregistry.Registry,
	tools *toolregistry.Registry,
	perms *permission.Manager,
	executor *agentexec.Executor,
	classifier *intent.Classifier,
	dagBuilder *dag.Builder,
	parallelExe *parallel.Executor,
	eval *evaluator.Evaluator,
	synthesisLLM SynthesisLLM,
	nextActionsLLM NextActionLLM,
	webFetcher WebFetcher,
	queryLogger QueryLogger,
	agentKindLLM AgentKindLLM,
	traceLogger TraceLogger,
) *Orchestrator {
	return &Orchestrator{
		agents: agents, tools: tools, perms: perms, executor: executor, classifier: classifier, dagBuilder: dagBuilder,
		parallelExe: parallelExe, eval: eval, synthEval: evaluator.NewSynthesisEvaluator(),
		synthesisLLM: synthesisLLM, nextActionsLLM: nextActionsLLM, webFetcher: webFetcher, queryLogger: queryLogger,
		agentKindLLM: agentKindLLM, traceLogger: traceLogger,
	}
}

// ListAgentKinds returns every registered agent kind's static configuration
// (SPEC_FULL.md §6, the `list_agent_kinds` operation).
func (o *Orchestrator) ListAgentKinds() []*agentregistry.Agent {
	return o.agents.All()
}

// ListTools returns the tool definitions visible to userID: every
// registered tool when no Permission Manager is configured, otherwise
// filtered to the union of tools any agent kind allows that user to
// invoke.
func (o *Orchestrator) ListTools(userID string) []toolregistry.Definition {
	if o.perms == nil {
		var defs []toolregistry.Definition
		for _, t := range o.tools.ListAll() {
			defs = append(defs, toolregistry.ToDefinition(t))
		}
		return defs
	}

	allowed := map[string]struct{}{}
	for _, kind := range types.AllAgentKinds {
		for _, name := range o.perms.GetAllowedTools(kind, userID) {
			allowed[name] = struct{}{}
		}
	}

	var defs []toolregistry.Definition
	for _, t := range o.tools.ListAll() {
		if _, ok := allowed[t.Name()]; ok {
			defs = append(defs, toolregistry.ToDefinition(t))
		}
	}
	return defs
}

// Execute runs the unary orchestration path (SPEC_FULL.md §4.8).
func (o *Orchestrator) Execute(ctx context.Context, req Request, userID string) Response {
	return o.execute(ctx, req, userID, false)
}

// ExecuteEnterprise always runs the multi-agent DAG path regardless of
// req.Config.EnableMultiAgent.
func (o *Orchestrator) ExecuteEnterprise(ctx context.Context, req Request, userID string) Response {
	return o.execute(ctx, req, userID, true)
}

func (o *Orchestrator) execute(ctx context.Context, req Request, userID string, forceMultiAgent bool) Response {
	start := time.Now()
	tc := trace.NewExecutionTrace()
	tc.Record("orchestration_start", "", map[string]any{"task": req.Task})

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
		result := o.executor.Run(ctx, agentKind, req.Task, base)
		return o.finishSingleAgent(tc, start, req, userID, agentKind, intentResult, result)
	}

	d, err := o.dagBuilder.Build(ctx, req.Task, agentKind, req.Language)
	if err != nil {
		d = singleNodeFallback(req.Task, agentKind)
		tc.Record("dag_fallback", "", map[string]any{"error": err.Error()})
	}
	tc.DAG = d
	tc.Record("dag_created", "", map[string]any{"task_count": len(d.Tasks), "parallelism": d.Parallelism})

	results := o.parallelExe.ExecuteDAG(ctx, d, base, cfg, tc)

	return o.finishMultiAgent(ctx, tc, start, req, userID, agentKind, intentResult, d, results, cfg)
}

func singleNodeFallback(task string, kind types.AgentKind) *types.TaskDAG {
	return &types.TaskDAG{
		Tasks:            map[string]*types.SubTask{"task_1": {ID: "task_1", Description: task, AgentKind: kind, Status: types.StatusPending}},
		RootTask:         "task_1",
		ExecutionBatches: [][]string{{"task_1"}},
		Parallelism:      types.ParallelismNone,
	}
}

func (o *Orchestrator) finishSingleAgent(tc *trace.ExecutionTrace, start time.Time, req Request, userID string, kind types.AgentKind, intentResult *types.IntentResult, result types.AgentResult) Response {
	tc.Finish()
	elapsed := time.Since(start)

	resp := Response{
		Answer: result.Answer, AgentKind: kind, SessionID: req.SessionID, Steps: result.Steps,
		ExecutionTime: elapsed, Success: result.Success, Trace: tc.Snapshot(),
	}
	if req.IncludeSources {
		resp.Sources = result.Sources
	}

	o.logQuery(req, userID, kind, intentResult, elapsed, result.Success, result.Answer)
	o.recordTrace(req, userID, tc)
	return resp
}

func (o *Orchestrator) finishMultiAgent(ctx context.Context, tc *trace.ExecutionTrace, start time.Time, req Request, userID string, kind types.AgentKind, intentResult *types.IntentResult, d *types.TaskDAG, results map[string]*types.AgentResult, cfg types.OrchestrationConfig) Response {
	successful := map[string]*types.AgentResult{}
	var partialFailures []string
	for id, r := range results {
		if r.Success {
			successful[id] = r
		} else {
			partialFailures = append(partialFailures, id)
		}
	}

	if cfg.EnableEvaluation {
		for id, r := range results {
			evalResult := o.eval.EvaluateTask(d.Tasks[id].Description, *r, cfg.EvaluationCriteria)
			tc.RecordEvaluation(id, evalResult)
		}
	}

	answer := o.synthesize(ctx, req.Task, d, successful, req.Language, tc)

	var nextActions []string
	if cfg.EnableNextActions && len(successful) > 0 && o.nextActionsLLM != nil {
		nextActions = o.generateNextActions(ctx, req.Task, answer, req.Language)
	}
	tc.NextActions = nextActions

	var allSources []types.Source
	totalSteps := 0
	for _, r := range successful {
		allSources = append(allSources, r.Sources...)
		totalSteps += r.Steps
	}
	allSources = dedupSources(allSources)

	tc.Finish()
	elapsed := time.Since(start)

	subtaskResults := map[string]SubtaskSummary{}
	for id, r := range results {
		subtaskResults[id] = SubtaskSummary{
			Answer:        truncateWithEllipsis(r.Answer, subtaskAnswerPreviewLimit),
			AgentKind:     r.AgentKind,
			Success:       r.Success,
			ExecutionTime: r.ExecutionTime,
		}
	}

	resp := Response{
		Answer: answer, AgentKind: kind, SessionID: req.SessionID, Steps: totalSteps,
		ExecutionTime: elapsed, Success: len(successful) > 0,
		SubtaskResults: subtaskResults, PartialFailures: partialFailures, NextActions: nextActions,
		Trace: tc.Snapshot(),
	}
	if req.IncludeSources {
		resp.Sources = allSources
	}

	o.logQuery(req, userID, kind, intentResult, elapsed, len(successful) > 0, answer)
	o.recordTrace(req, userID, tc)
	return resp
}

func (o *Orchestrator) synthesize(ctx context.Context, task string, d *types.TaskDAG, successful map[string]*types.AgentResult, language string, tc *trace.ExecutionTrace) string {
	if root, ok := d.Tasks[d.RootTask]; ok && root.IsSynthesis() {
		if r, ok := successful[d.RootTask]; ok {
			tc.SynthesisMetadata = map[string]any{"method": "is_synthesis_tag", "subtask": d.RootTask}
			return r.Answer
		}
	}

	if len(successful) > 1 {
		tc.Record("synthesis_start", "", map[string]any{"result_count": len(successful)})

		var parts []string
		for id, r := range successful {
			parts = append(parts, fmt.Sprintf("[%s]\n%s", id, r.Answer))
		}
		combined := strings.Join(parts, "\n\n---\n\n")

		if o.synthesisLLM == nil {
			tc.SynthesisMetadata = map[string]any{"method": "concatenation"}
			return combined
		}

		synthesized, err := o.synthesisLLM.Synthesize(ctx, task, combined, language)
		if err != nil {
			tc.SynthesisMetadata = map[string]any{"method": "concatenation", "error": err.Error()}
			return combined
		}
		tc.SynthesisMetadata = map[string]any{"method": "llm"}
		tc.Record("synthesis_complete", "", map[string]any{"length": len(synthesized)})
		return synthesized
	}

	if len(successful) == 1 {
		for _, r := range successful {
			return r.Answer
		}
	}

	if msg, ok := allTasksFailedMessage[language]; ok {
		return msg
	}
	return allTasksFailedMessage["ko"]
}

func (o *Orchestrator) generateNextActions(ctx context.Context, task, answer, language string) []string {
	raw, err := o.nextActionsLLM.SuggestNextActions(ctx, task, answer, language)
	if err != nil {
		return nil
	}
	var suggestions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "- "):
			suggestions = append(suggestions, line[2:])
		case strings.HasPrefix(line, "• "):
			suggestions = append(suggestions, strings.TrimSpace(line[len("• "):]))
		}
		if len(suggestions) == 3 {
			break
		}
	}
	return suggestions
}

func (o *Orchestrator) logQuery(req Request, userID string, kind types.AgentKind, intentResult *types.IntentResult, elapsed time.Duration, success bool, answer string) {
	if o.queryLogger == nil {
		return
	}
	rec := QueryLogRecord{
		QueryText: req.Task, UserID: userID, SessionID: req.SessionID, AgentKind: kind,
		Language: req.Language, ExecutionTimeMS: elapsed.Milliseconds(), Success: success,
		ResponseSummary: truncateWithEllipsis(answer, subtaskAnswerPreviewLimit),
	}
	if intentResult != nil {
		rec.IntentType = string(intentResult.Intent)
		if p, ok := intentResult.ExtractedParams["product"].(string); ok {
			rec.Category = p
		}
	}
	o.queryLogger.LogQuery(context.Background(), rec)
}

// recordTrace submits tc for background persistence, when a TraceLogger is
// configured.
func (o *Orchestrator) recordTrace(req Request, userID string, tc *trace.ExecutionTrace) {
	if o.traceLogger == nil {
		return
	}
	o.traceLogger.Record(uuid.NewString(), req.SessionID, userID, tc)
}

func dedupSources(sources []types.Source) []types.Source {
	seen := map[string]struct{}{}
	var out []types.Source
	for _, s := range sources {
		if _, ok := seen[s.Source]; ok {
			continue
		}
		seen[s.Source] = struct{}{}
		out = append(out, s)
		if len(out) == 10 {
			break
		}
	}
	return out
}

func truncateWithEllipsis(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
