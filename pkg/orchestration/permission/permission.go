// Package permission implements the rule-based access check for
// (tool, agent-kind, user) triples described by SPEC_FULL.md §4.2, grounded
// on original_source's permissions.py.
package permission

import (
	"path/filepath"
	"sync"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Action is the outcome a Rule assigns when it matches.
type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
	Ask   Action = "ask" // treated as Deny in non-interactive mode
)

// Rule is one ordered entry in an agent kind's permission list.
type Rule struct {
	Tool        string // exact tool name, or "*" for any
	Pattern     string // glob over the resource argument, or "*" for any
	Action      Action
	Description string
}

func (r Rule) matches(tool, resource string) bool {
	if r.Tool != "*" && r.Tool != tool {
		return false
	}
	if r.Pattern != "*" {
		ok, err := filepath.Match(r.Pattern, resource)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// AgentPermissions is the ordered rule list and fallback action for one
// agent kind.
type AgentPermissions struct {
	AgentKind     types.AgentKind
	Rules         []Rule
	DefaultAction Action
}

// DefaultAgentPermissions is the out-of-the-box per-agent-kind rule table
// (SPEC_FULL.md §4.1/§4.2), carried verbatim from original_source's
// DEFAULT_AGENT_PERMISSIONS.
func DefaultAgentPermissions() map[types.AgentKind]AgentPermissions {
	return map[types.AgentKind]AgentPermissions{
		types.AgentRAG: {
			AgentKind: types.AgentRAG,
			Rules: []Rule{
				{Tool: "vector_search", Pattern: "*", Action: Allow},
				{Tool: "graph_query", Pattern: "*", Action: Allow},
				{Tool: "document_read", Pattern: "*", Action: Allow},
				{Tool: "*", Pattern: "*", Action: Deny},
			},
			DefaultAction: Deny,
		},
		types.AgentIMS: {
			AgentKind: types.AgentIMS,
			Rules: []Rule{
				{Tool: "ims_search", Pattern: "*", Action: Allow},
				{Tool: "web_fetch", Pattern: "*", Action: Allow},
				{Tool: "vector_search", Pattern: "*", Action: Allow},
				{Tool: "*", Pattern: "*", Action: Deny},
			},
			DefaultAction: Deny,
		},
		types.AgentVision: {
			AgentKind: types.AgentVision,
			Rules: []Rule{
				{Tool: "document_read", Pattern: "*", Action: Allow},
				{Tool: "vector_search", Pattern: "*", Action: Allow},
				{Tool: "*", Pattern: "*", Action: Deny},
			},
			DefaultAction: Deny,
		},
		types.AgentCode: {
			AgentKind: types.AgentCode,
			Rules: []Rule{
				{Tool: "document_read", Pattern: "*", Action: Allow},
				{Tool: "vector_search", Pattern: "*", Action: Allow},
				{Tool: "shell", Pattern: "*.py", Action: Allow},
				{Tool: "shell", Pattern: "python*", Action: Allow},
				{Tool: "shell", Pattern: "npm*", Action: Allow},
				{Tool: "shell", Pattern: "node*", Action: Allow},
				{Tool: "*", Pattern: "*", Action: Deny},
			},
			DefaultAction: Deny,
		},
		types.AgentPlanner: {
			AgentKind: types.AgentPlanner,
			Rules: []Rule{
				{Tool: "vector_search", Pattern: "*", Action: Allow},
				{Tool: "graph_query", Pattern: "*", Action: Allow},
				{Tool: "ims_search", Pattern: "*", Action: Allow},
				{Tool: "document_read", Pattern: "*", Action: Allow},
				{Tool: "*", Pattern: "*", Action: Deny},
			},
			DefaultAction: Deny,
		},
	}
}

// Manager evaluates tool-access checks. Written at startup (or by admin
// mutators), read-only on the request hot path.
type Manager struct {
	mu               sync.RWMutex
	agentPermissions map[types.AgentKind]AgentPermissions
	userOverrides    map[string]map[string]Action // user id -> tool name -> action
	adminUsers       map[string]struct{}
}

// New creates a Manager seeded with DefaultAgentPermissions.
func New() *Manager {
	return &Manager{
		agentPermissions: DefaultAgentPermissions(),
		userOverrides:    map[string]map[string]Action{},
		adminUsers:       map[string]struct{}{},
	}
}

// SetAgentPermissions replaces the rule list for an agent kind.
func (m *Manager) SetAgentPermissions(kind types.AgentKind, perms AgentPermissions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentPermissions[kind] = perms
}

// AddAdminUser grants a user bypass of every permission check.
func (m *Manager) AddAdminUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminUsers[userID] = struct{}{}
}

// RemoveAdminUser revokes admin bypass.
func (m *Manager) RemoveAdminUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adminUsers, userID)
}

// SetUserOverride sets a per-user, per-tool override that takes precedence
// over the agent's rule list (but not over admin bypass).
func (m *Manager) SetUserOverride(userID, tool string, action Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userOverrides[userID] == nil {
		m.userOverrides[userID] = map[string]Action{}
	}
	m.userOverrides[userID][tool] = action
}

// CheckPermission reports whether tool may be invoked by agentKind acting on
// behalf of userID (optional) against resource (optional glob subject,
// "*" when not applicable). Precedence: admin bypass, then exact-name user
// override, then the agent kind's ordered rule list, then its default
// action.
func (m *Manager) CheckPermission(tool string, agentKind types.AgentKind, userID, resource string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if userID != "" {
		if _, ok := m.adminUsers[userID]; ok {
			return true
		}
		if overrides, ok := m.userOverrides[userID]; ok {
			if action, ok := overrides[tool]; ok {
				return action == Allow
			}
		}
	}

	if resource == "" {
		resource = "*"
	}

	perms, ok := m.agentPermissions[agentKind]
	if !ok {
		return false
	}

	for _, rule := range perms.Rules {
		if rule.matches(tool, resource) {
			return rule.Action == Allow
		}
	}

	return perms.DefaultAction == Allow
}

// GetAllowedTools returns the set of tool names the agent kind (plus any
// user overrides) is allowed to use, for introspection/UI purposes.
func (m *Manager) GetAllowedTools(agentKind types.AgentKind, userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	perms, ok := m.agentPermissions[agentKind]
	if !ok {
		return nil
	}

	allowed := map[string]struct{}{}
	for _, rule := range perms.Rules {
		if rule.Action == Allow && rule.Tool != "*" {
			allowed[rule.Tool] = struct{}{}
		}
	}

	if userID != "" {
		if overrides, ok := m.userOverrides[userID]; ok {
			for tool, action := range overrides {
				if action == Allow {
					allowed[tool] = struct{}{}
				} else if action == Deny {
					delete(allowed, tool)
				}
			}
		}
	}

	out := make([]string, 0, len(allowed))
	for tool := range allowed {
		out = append(out, tool)
	}
	return out
}
