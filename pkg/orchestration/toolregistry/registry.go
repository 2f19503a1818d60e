package toolregistry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// defaultAgentTools is the data-driven per-agent-kind tool assignment table
// named by SPEC_FULL.md §4.1. It is data, not code branches, so adding a new
// tool to an agent kind never requires touching the registry's logic.
var defaultAgentTools = map[types.AgentKind][]string{
	types.AgentRAG:     {"vector_search", "graph_query", "document_read"},
	types.AgentIMS:     {"ims_search", "web_fetch", "vector_search"},
	types.AgentVision:  {"document_read", "vector_search"},
	types.AgentCode:    {"document_read", "shell", "vector_search"},
	types.AgentPlanner: {"vector_search", "graph_query", "ims_search", "document_read"},
}

// Registry is the process-wide, name-keyed tool catalog. It is written once
// at startup and read thereafter by every request. Reads are not lock-free:
// each one takes the shared read lock of mu.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	overlay map[types.AgentKind][]string
	log     *slog.Logger
}

// New creates an empty registry.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), overlay: make(map[types.AgentKind][]string), log: log}
}

// Register adds a tool, overwriting (with a warning) any prior registration
// under the same name: last-writer-wins, idempotent.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.log.Warn("tool already registered, overwriting", "tool", t.Name())
	}
	r.tools[t.Name()] = t
	r.log.Debug("registered tool", "tool", t.Name())
}

// RegisterForKinds registers t and additionally assigns it to each of kinds,
// on top of the default table. This is how deployment-configured tools with
// no fixed name (MCP proxies named after the server they front) reach an
// agent's default tool list without hardcoding their name into
// defaultAgentTools.
func (r *Registry) RegisterForKinds(t Tool, kinds ...types.AgentKind) {
	r.Register(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range kinds {
		r.overlay[kind] = append(r.overlay[kind], t.Name())
	}
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ListAll returns every registered tool.
func (r *Registry) ListAll() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ListForAgentKind returns the tools assigned to kind by the default
// assignment table plus any RegisterForKinds assignments, skipping any name
// that has no registered implementation.
func (r *Registry) ListForAgentKind(kind types.AgentKind) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append(append([]string{}, defaultAgentTools[kind]...), r.overlay[kind]...)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Definitions returns LLM-facing tool definitions for the named tools, or
// for every registered tool when names is nil.
func (r *Registry) Definitions(names []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if names == nil {
		defs := make([]Definition, 0, len(r.tools))
		for _, t := range r.tools {
			defs = append(defs, ToDefinition(t))
		}
		return defs
	}
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, ToDefinition(t))
		}
	}
	return defs
}

// Invoke validates args against the named tool's schema and, if valid,
// executes it. Schema failures return *InvalidArgumentsError; an unknown
// tool name returns ErrUnknownTool.
func (r *Registry) Invoke(ctx context.Context, name string, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return types.ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if _, err := decodeArgs(t, args); err != nil {
		return types.ToolResult{}, err
	}
	return t.Execute(ctx, agentCtx, args)
}
