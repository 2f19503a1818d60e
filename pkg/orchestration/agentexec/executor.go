// Package agentexec implements the Reason-Act loop that drives a single
// agent through however many LLM turns and tool calls it takes to answer one
// task (SPEC_FULL.md §4.6), grounded on original_source's agent
// base/execution loop and on hector's reasoning.ChainOfThoughtReasoningEngine
// for the channel-driven streaming shape.
package agentexec

import (
	"container/ring"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
	"github.com/kbagents/orchestrator/pkg/utils"
)

// DefaultMaxSteps and HardMaxSteps bound the Reason-Act loop length.
const (
	DefaultMaxSteps  = 10
	HardMaxSteps     = 50
	DoomLoopThreshold = 3
	historyTurnLimit  = 5
	maxHistoryTokens  = 4000
	toolOutputTruncate = 500
	textChunkSize      = 50
	textChunkPacing     = 20 * time.Millisecond
	maxSources          = 10
)

// ChatClient is the LLM collaborator the executor drives. Implementations
// live in pkg/llm.
type ChatClient interface {
	Chat(ctx context.Context, messages []types.AgentMessage, tools []toolregistry.Definition) (types.AgentMessage, error)
}

// Executor runs the Reason-Act loop for one agent kind.
type Executor struct {
	agents      *agentregistry.Registry
	tools       *toolregistry.Registry
	permissions *permission.Manager
	llm         ChatClient
	byKind      map[types.AgentKind]ChatClient
	tokens      *utils.TokenCounter
	log         *slog.Logger
}

// New creates an Executor. llm is the default ChatClient used by any agent
// kind with no override in WithAgentLLMs.
func New(agents *agentregistry.Registry, tools *toolregistry.Registry, permissions *permission.Manager, llm ChatClient, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	tokens, err := utils.NewTokenCounter("gpt-4")
	if err != nil {
		log.Warn("token counter unavailable, falling back to turn-count history truncation only", "error", err)
	}
	return &Executor{agents: agents, tools: tools, permissions: permissions, llm: llm, tokens: tokens, log: log}
}

// WithAgentLLMs installs per-agent-kind ChatClient overrides, resolved from
// config.Config.AgentLLMs at startup (each agent kind can be bound to a
// different named LLM backend, e.g. a cheaper model for vision). A kind with
// no entry in byKind keeps using the Executor's default llm.
func (e *Executor) WithAgentLLMs(byKind map[types.AgentKind]ChatClient) *Executor {
	e.byKind = byKind
	return e
}

// chatClientFor resolves the ChatClient to drive kind's Reason-Act loop.
func (e *Executor) chatClientFor(kind types.AgentKind) ChatClient {
	if c, ok := e.byKind[kind]; ok && c != nil {
		return c
	}
	return e.llm
}

// effectiveMaxSteps resolves the requested step budget: 0 is the explicit
// one-reasoning-call-no-tools boundary case (DESIGN.md resolution #4),
// negative means "unset" and falls back to DefaultMaxSteps, and anything
// above HardMaxSteps is clamped down to it.
func effectiveMaxSteps(requested int) int {
	switch {
	case requested == 0:
		return 0
	case requested < 0:
		return DefaultMaxSteps
	case requested > HardMaxSteps:
		return HardMaxSteps
	default:
		return requested
	}
}

// Run drives the unary Reason-Act loop and returns the final AgentResult.
func (e *Executor) Run(ctx context.Context, kind types.AgentKind, task string, agentCtx *types.AgentContext) types.AgentResult {
	start := time.Now()
	agent, err := e.agents.Get(kind)
	if err != nil {
		return types.AgentResult{AgentKind: kind, Success: false, Error: err.Error(), ExecutionTime: time.Since(start)}
	}

	maxSteps := effectiveMaxSteps(agentCtx.MaxSteps)

	toolDefs := e.tools.Definitions(agent.ToolNames)
	messages := e.buildMessages(agent, task, agentCtx)

	sig := newSignatureWindow()
	var toolCalls []types.ToolCall
	var toolResults []types.ToolResult
	steps := 0
	finalAnswer := ""

	for step := 0; ; step++ {
		if maxSteps == 0 {
			resp, err := e.chatClientFor(kind).Chat(ctx, messages, toolDefs)
			if err != nil {
				return failResult(kind, start, fmt.Sprintf("Execution failed: %s", err))
			}
			return types.AgentResult{
				Answer: resp.Content, AgentKind: kind, Steps: 0, ToolCalls: toolCalls, ToolResults: toolResults,
				Sources: extractSources(toolResults), Success: true, ExecutionTime: time.Since(start),
			}
		}
		if step >= maxSteps {
			break
		}

		resp, err := e.chatClientFor(kind).Chat(ctx, messages, toolDefs)
		if err != nil {
			return failResult(kind, start, fmt.Sprintf("Execution failed: %s", err))
		}
		messages = append(messages, resp)
		steps = step + 1

		if len(resp.ToolCalls) == 0 {
			finalAnswer = resp.Content
			break
		}

		doomed := false
		for _, tc := range resp.ToolCalls {
			if sig.pushAndCheckRepeat(signatureOf(tc)) {
				doomed = true
				break
			}
		}
		if doomed {
			fallback := resp.Content
			if fallback == "" {
				fallback = "no new information was found"
			}
			finalAnswer = fmt.Sprintf("I noticed I was repeating the same action. Based on the information gathered: %s", fallback)
			break
		}

		for _, tc := range resp.ToolCalls {
			toolCalls = append(toolCalls, tc)
			result := e.invoke(ctx, tc, kind, agentCtx)
			toolResults = append(toolResults, result)
			messages = append(messages, types.AgentMessage{
				Role:       types.RoleTool,
				Content:    toolMessageContent(result),
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Timestamp:  time.Now(),
			})
		}
	}

	return types.AgentResult{
		Answer: finalAnswer, AgentKind: kind, Steps: steps, ToolCalls: toolCalls, ToolResults: toolResults,
		Sources: extractSources(toolResults), Success: true, ExecutionTime: time.Since(start),
	}
}

// RunStreaming drives the same loop, emitting Chunks on the returned channel.
// The channel is closed once a ChunkDone (or ChunkError) has been sent; if
// ctx is cancelled it is closed without either.
func (e *Executor) RunStreaming(ctx context.Context, kind types.AgentKind, task string, agentCtx *types.AgentContext) <-chan Chunk {
	out := make(chan Chunk, 16)
	go func() {
		defer close(out)

		agent, err := e.agents.Get(kind)
		if err != nil {
			out <- Chunk{Kind: ChunkError, Err: err.Error()}
			return
		}

		maxSteps := effectiveMaxSteps(agentCtx.MaxSteps)

		toolDefs := e.tools.Definitions(agent.ToolNames)
		messages := e.buildMessages(agent, task, agentCtx)
		sig := newSignatureWindow()
		var toolResults []types.ToolResult
		finalAnswer := ""

		for step := 0; ; step++ {
			if maxSteps == 0 {
				resp, err := e.chatClientFor(kind).Chat(ctx, messages, toolDefs)
				if err != nil {
					out <- Chunk{Kind: ChunkError, Err: err.Error()}
					return
				}
				finalAnswer = resp.Content
				break
			}
			if step >= maxSteps {
				break
			}

			select {
			case out <- Chunk{Kind: ChunkThinking}:
			case <-ctx.Done():
				return
			}

			resp, err := e.chatClientFor(kind).Chat(ctx, messages, toolDefs)
			if err != nil {
				out <- Chunk{Kind: ChunkError, Err: err.Error()}
				return
			}
			messages = append(messages, resp)

			if len(resp.ToolCalls) == 0 {
				finalAnswer = resp.Content
				break
			}

			doomed := false
			for _, tc := range resp.ToolCalls {
				if sig.pushAndCheckRepeat(signatureOf(tc)) {
					doomed = true
					break
				}
			}
			if doomed {
				fallback := resp.Content
				if fallback == "" {
					fallback = "no new information was found"
				}
				finalAnswer = fmt.Sprintf("I noticed I was repeating the same action. Based on the information gathered: %s", fallback)
				break
			}

			for _, tc := range resp.ToolCalls {
				select {
				case out <- Chunk{Kind: ChunkToolCall, ToolName: tc.Name, ToolInput: tc.Args}:
				case <-ctx.Done():
					return
				}

				result := e.invoke(ctx, tc, kind, agentCtx)
				toolResults = append(toolResults, result)

				output := result.Output
				if !result.Success {
					output = "Error: " + result.Error
				}
				select {
				case out <- Chunk{Kind: ChunkToolResult, ToolName: tc.Name, ToolOutput: truncate(output, toolOutputTruncate)}:
				case <-ctx.Done():
					return
				}

				messages = append(messages, types.AgentMessage{
					Role: types.RoleTool, Content: toolMessageContent(result), ToolCallID: tc.ID, Name: tc.Name, Timestamp: time.Now(),
				})
			}
		}

		for _, frag := range chunkText(finalAnswer, textChunkSize) {
			select {
			case out <- Chunk{Kind: ChunkText, Text: frag}:
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(textChunkPacing):
			case <-ctx.Done():
				return
			}
		}

		sources := extractSources(toolResults)
		sourceNames := make([]string, len(sources))
		for i, s := range sources {
			sourceNames[i] = s.Source
		}
		out <- Chunk{Kind: ChunkSources, Sources: sourceNames}
		out <- Chunk{Kind: ChunkDone, Text: finalAnswer}
	}()
	return out
}

func (e *Executor) invoke(ctx context.Context, tc types.ToolCall, kind types.AgentKind, agentCtx *types.AgentContext) types.ToolResult {
	resource := "*"
	if v, ok := tc.Args["path"].(string); ok && v != "" {
		resource = v
	} else if v, ok := tc.Args["command"].(string); ok && v != "" {
		resource = v
	}

	if !e.permissions.CheckPermission(tc.Name, kind, agentCtx.UserID, resource) {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("Permission denied for tool: %s", tc.Name)}
	}

	result, err := e.tools.Invoke(ctx, tc.Name, agentCtx, tc.Args)
	if err != nil {
		if ia, ok := err.(*toolregistry.InvalidArgumentsError); ok {
			return types.ToolResult{Success: false, Error: fmt.Sprintf("Invalid parameters: %s", ia.Error())}
		}
		return types.ToolResult{Success: false, Error: fmt.Sprintf("Tool execution failed: %s", err)}
	}
	return result
}

func failResult(kind types.AgentKind, start time.Time, msg string) types.AgentResult {
	return types.AgentResult{AgentKind: kind, Success: false, Error: msg, ExecutionTime: time.Since(start)}
}

func toolMessageContent(result types.ToolResult) string {
	if !result.Success {
		return "Error: " + result.Error
	}
	return result.Output
}

func (e *Executor) buildMessages(agent *agentregistry.Agent, task string, agentCtx *types.AgentContext) []types.AgentMessage {
	messages := []types.AgentMessage{{Role: types.RoleSystem, Content: agent.SystemPrompt, Timestamp: time.Now()}}

	history := agentCtx.ConversationHistory
	if len(history) > historyTurnLimit {
		history = history[len(history)-historyTurnLimit:]
	}
	history = e.fitHistoryTokens(history)
	messages = append(messages, history...)

	messages = append(messages, types.AgentMessage{Role: types.RoleUser, Content: task, Timestamp: time.Now()})
	return messages
}

// fitHistoryTokens further trims history, most-recent-first, to
// maxHistoryTokens using an accurate tiktoken count rather than the
// historyTurnLimit's blunt turn cap. A nil counter (tiktoken init failed)
// leaves history as the turn-count cap left it.
func (e *Executor) fitHistoryTokens(history []types.AgentMessage) []types.AgentMessage {
	if e.tokens == nil || len(history) == 0 {
		return history
	}
	asUtil := make([]utils.Message, len(history))
	for i, m := range history {
		asUtil[i] = utils.Message{Role: string(m.Role), Content: m.Content}
	}
	fitted := e.tokens.FitWithinLimit(asUtil, maxHistoryTokens)
	if len(fitted) == len(history) {
		return history
	}
	return history[len(history)-len(fitted):]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func chunkText(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func signatureOf(tc types.ToolCall) string {
	keys := make([]string, 0, len(tc.Args))
	for k := range tc.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	canonical := make(map[string]any, len(tc.Args))
	for _, k := range keys {
		canonical[k] = tc.Args[k]
	}
	b, _ := json.Marshal(canonical)
	return tc.Name + "|" + string(b)
}

// signatureWindow is a fixed-size ring buffer over the most recent tool-call
// signatures, used to detect the Agent Executor repeating itself.
type signatureWindow struct {
	r     *ring.Ring
	count int
}

func newSignatureWindow() *signatureWindow {
	return &signatureWindow{r: ring.New(DoomLoopThreshold)}
}

// pushAndCheckRepeat records sig and reports whether the last
// DoomLoopThreshold signatures (including this one) are all identical.
func (w *signatureWindow) pushAndCheckRepeat(sig string) bool {
	w.r.Value = sig
	w.r = w.r.Next()
	if w.count < DoomLoopThreshold {
		w.count++
	}
	if w.count < DoomLoopThreshold {
		return false
	}
	repeat := true
	first := ""
	w.r.Do(func(v any) {
		s, _ := v.(string)
		if first == "" {
			first = s
		} else if s != first {
			repeat = false
		}
	})
	return repeat
}

func extractSources(results []types.ToolResult) []types.Source {
	seen := map[string]struct{}{}
	var out []types.Source
	add := func(src string) {
		if src == "" {
			return
		}
		if _, ok := seen[src]; ok {
			return
		}
		seen[src] = struct{}{}
		out = append(out, types.Source{Source: src})
	}

	for _, r := range results {
		if !r.Success {
			continue
		}
		if s, ok := r.Metadata["sources"].([]string); ok {
			for _, src := range s {
				add(src)
			}
		}
		var parsed struct {
			Results []struct {
				Source string `json:"source"`
			} `json:"results"`
		}
		if err := json.Unmarshal([]byte(r.Output), &parsed); err == nil {
			for _, item := range parsed.Results {
				add(item.Source)
			}
		}
		if len(out) >= maxSources {
			break
		}
	}

	if len(out) > maxSources {
		out = out[:maxSources]
	}
	return out
}
