// Package agentregistry maps each AgentKind to a configured Agent instance:
// system prompt and tool allowlist (SPEC_FULL.md §4.5,
// "Agent Registry" row of §2). Grounded on original_source's registry.py
// AgentRegistry and hector's agent/registry.go BaseRegistry[T] reuse.
package agentregistry

import (
	"fmt"
	"sync"

	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Agent is the static configuration of one agent kind: its system prompt
// and the tool names it is entitled to request (actual enforcement is the
// Permission Manager's job; this is the allowlist handed to the LLM as
// available function-call schemas).
type Agent struct {
	Kind         types.AgentKind
	Name         string
	Description  string
	SystemPrompt string
	ToolNames    []string
}

// Error is the Agent Registry's typed error, following hector's
// Component/Action/Message/Err convention.
type Error struct {
	Action  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agentregistry: %s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("agentregistry: %s: %s", e.Action, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Registry is the process-wide AgentKind -> Agent map. Written at startup,
// read-only thereafter.
type Registry struct {
	mu     sync.RWMutex
	agents map[types.AgentKind]*Agent
}

// New creates a registry pre-populated with the closed set of default
// agents, each pointed at its default tool assignment from toolRegistry.
func New(toolRegistry *toolregistry.Registry) *Registry {
	r := &Registry{agents: map[types.AgentKind]*Agent{}}
	for _, kind := range types.AllAgentKinds {
		names := make([]string, 0)
		for _, t := range toolRegistry.ListForAgentKind(kind) {
			names = append(names, t.Name())
		}
		r.agents[kind] = defaultAgent(kind, names)
	}
	return r
}

func defaultAgent(kind types.AgentKind, toolNames []string) *Agent {
	switch kind {
	case types.AgentRAG:
		return &Agent{Kind: kind, Name: "rag", Description: "Answers knowledge-base questions using vector and graph search.",
			SystemPrompt: "You are a knowledge assistant. Answer the user's question using the available search tools. Cite sources when you use them.", ToolNames: toolNames}
	case types.AgentIMS:
		return &Agent{Kind: kind, Name: "ims", Description: "Investigates issues and tickets in the issue-tracking system.",
			SystemPrompt: "You are an issue-tracking assistant. Use the issue search and web tools to investigate and report on tickets.", ToolNames: toolNames}
	case types.AgentVision:
		return &Agent{Kind: kind, Name: "vision", Description: "Analyzes images, charts, and diagrams referenced by documents.",
			SystemPrompt: "You are a visual-content assistant. Use the document reader to inspect attached images and describe what they show.", ToolNames: toolNames}
	case types.AgentCode:
		return &Agent{Kind: kind, Name: "code", Description: "Reads, explains, and runs small code snippets in a sandboxed shell.",
			SystemPrompt: "You are a coding assistant. You may read documents and run short, safe shell commands to verify your answer.", ToolNames: toolNames}
	case types.AgentPlanner:
		return &Agent{Kind: kind, Name: "planner", Description: "Breaks complex requests into a plan before delegating to other agents.",
			SystemPrompt: "You are a planning assistant. Decompose the user's request into clear steps, using search tools to ground the plan in facts.", ToolNames: toolNames}
	default:
		return &Agent{Kind: kind, Name: string(kind), SystemPrompt: "You are a helpful assistant.", ToolNames: toolNames}
	}
}

// Get returns the Agent configured for kind.
func (r *Registry) Get(kind types.AgentKind) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[kind]
	if !ok {
		return nil, &Error{Action: "Get", Message: fmt.Sprintf("no agent registered for kind %q", kind)}
	}
	return a, nil
}

// Set overrides the configuration for an agent kind, e.g. from a loaded
// config file's custom system prompts.
func (r *Registry) Set(kind types.AgentKind, a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[kind] = a
}

// All returns every registered agent kind's configuration, for the
// list_agent_kinds operation (SPEC_FULL.md §6).
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, kind := range types.AllAgentKinds {
		if a, ok := r.agents[kind]; ok {
			out = append(out, a)
		}
	}
	return out
}
