// Package types defines the core entities shared across the orchestration
// engine: agent kinds, messages, tool calls, subtasks, DAGs, and the
// configuration structures that tune evaluation and retry behavior.
package types

import (
	"time"

	"github.com/google/uuid"
)

// AgentKind is the closed set of specialized agent roles.
type AgentKind string

const (
	AgentRAG     AgentKind = "rag"
	AgentIMS     AgentKind = "ims"
	AgentVision  AgentKind = "vision"
	AgentCode    AgentKind = "code"
	AgentPlanner AgentKind = "planner"
)

// AllAgentKinds lists every closed-set value, in a stable order used for
// deterministic iteration (e.g. keyword-score tie-breaking).
var AllAgentKinds = []AgentKind{AgentRAG, AgentIMS, AgentVision, AgentCode, AgentPlanner}

func (k AgentKind) Valid() bool {
	switch k {
	case AgentRAG, AgentIMS, AgentVision, AgentCode, AgentPlanner:
		return true
	default:
		return false
	}
}

// MessageRole is the role of a turn in an agent conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall is a single function-call request emitted by the LLM.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"tool_name"`
	Args map[string]any `json:"arguments"`
}

// NewToolCallID generates a unique call id.
func NewToolCallID() string {
	return uuid.NewString()
}

// AgentMessage is a role-tagged turn in an agent's conversation history.
type AgentMessage struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ToolResult is the outcome of invoking a tool.
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source is a single attributable citation lifted from a tool result.
type Source struct {
	Source  string         `json:"source"`
	Content string         `json:"content,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// IntentType is the closed set of intent labels the Intent Classifier emits.
type IntentType string

const (
	IntentSearch   IntentType = "search"
	IntentListAll  IntentType = "list_all"
	IntentDetail   IntentType = "detail"
	IntentAnalyze  IntentType = "analyze"
	IntentCreate   IntentType = "create"
	IntentUpdate   IntentType = "update"
	IntentDelete   IntentType = "delete"
	IntentUnknown  IntentType = "unknown"
)

// IntentMethod records which tier of the classifier produced a result.
type IntentMethod string

const (
	MethodRules        IntentMethod = "rules"
	MethodLLM          IntentMethod = "llm"
	MethodRulesFallback IntentMethod = "rules_fallback"
)

// IntentResult is the classifier's verdict, attached to an AgentContext.
type IntentResult struct {
	Intent          IntentType     `json:"intent"`
	Confidence      float64        `json:"confidence"`
	ExtractedParams map[string]any `json:"extracted_params"`
	Method          IntentMethod   `json:"method"`
}

// AgentContext is per-request state threaded through orchestration. It is
// created once by the Orchestrator and shared read-only by every subtask of
// the same request; per-subtask extension happens by shallow clone (see
// Clone), never by mutating the shared value in place.
type AgentContext struct {
	SessionID           string
	UserID              string
	ConversationHistory []AgentMessage
	Language            string
	MaxSteps            int
	Timeout             time.Duration
	Metadata            map[string]any

	UploadedDocuments  []string
	ExternalResources  map[string]any

	FileContext string
	URLContext  string
	URLSource   string

	Intent *IntentResult
}

// Clone returns a shallow copy suitable for per-subtask extension: slices
// and maps are copied by reference (read-only sharing is fine since nothing
// downstream mutates them in place), but the struct itself is independent so
// that FileContext can be rewritten without disturbing siblings.
func (c AgentContext) Clone() AgentContext {
	return c
}

// AgentResult is what an Agent Executor run produces.
type AgentResult struct {
	Answer        string
	AgentKind     AgentKind
	Steps         int
	ToolCalls     []ToolCall
	ToolResults   []ToolResult
	Sources       []Source
	Metadata      map[string]any
	ExecutionTime time.Duration
	Success       bool
	Error         string
}

// SubTaskStatus is the monotone lifecycle of a SubTask.
type SubTaskStatus string

const (
	StatusPending   SubTaskStatus = "pending"
	StatusRunning   SubTaskStatus = "running"
	StatusCompleted SubTaskStatus = "completed"
	StatusFailed    SubTaskStatus = "failed"
	StatusSkipped   SubTaskStatus = "skipped"
)

// SubTask is one node of a TaskDAG.
type SubTask struct {
	ID           string
	Description  string
	AgentKind    AgentKind
	Dependencies []string
	Status       SubTaskStatus
	RetryCount   int
	Timeout      *time.Duration
	Result       *AgentResult
	Error        string
	Metadata     map[string]any
}

// IsSynthesis reports whether the DAG builder tagged this subtask as the
// designated synthesis point (metadata["is_synthesis"] == true).
func (s *SubTask) IsSynthesis() bool {
	if s.Metadata == nil {
		return false
	}
	v, ok := s.Metadata["is_synthesis"]
	return ok && v == true
}

// ParallelismKind classifies how a DAG's batches relate to each other.
type ParallelismKind string

const (
	ParallelismNone     ParallelismKind = "none"
	ParallelismFull     ParallelismKind = "full"
	ParallelismPartial  ParallelismKind = "partial"
	ParallelismPipeline ParallelismKind = "pipeline"
)

// TaskDAG is the decomposition of a user task into dependent subtasks.
type TaskDAG struct {
	Tasks            map[string]*SubTask
	RootTask         string
	ExecutionBatches [][]string
	Parallelism      ParallelismKind
}

// OrchestrationConfig toggles and limits for enterprise multi-agent runs.
type OrchestrationConfig struct {
	EnableMultiAgent    bool
	EnableParallel      bool
	EnableEvaluation    bool
	EnableRetry         bool
	EnableNextActions   bool
	ContinueOnFailure   bool
	AgentTimeouts       map[AgentKind]time.Duration
	EvaluationCriteria  EvaluationCriteria
	RetryConfig         RetryConfig
}

// DefaultOrchestrationConfig mirrors the defaults implied by SPEC_FULL.md §4.
func DefaultOrchestrationConfig() OrchestrationConfig {
	return OrchestrationConfig{
		EnableMultiAgent:  true,
		EnableParallel:    true,
		EnableEvaluation:  true,
		EnableRetry:       true,
		EnableNextActions: true,
		ContinueOnFailure: true,
		AgentTimeouts:     map[AgentKind]time.Duration{},
		EvaluationCriteria: EvaluationCriteria{
			MinConfidence:   0.6,
			MinAnswerLength: 10,
		},
		RetryConfig: RetryConfig{
			MaxRetries:     2,
			InitialDelay:   500 * time.Millisecond,
			BackoffFactor:  2.0,
			RetryOnFailure: true,
			RetryOnLowQuality: true,
		},
	}
}

// EvaluationCriteria parameterizes the Evaluator's scoring pass.
type EvaluationCriteria struct {
	MinConfidence      float64
	MinAnswerLength    int
	RequireSources     bool
	MaxExecutionTime   *time.Duration
}

// RetryConfig parameterizes the Evaluator's retry recommendation.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffFactor     float64
	RetryOnFailure    bool
	RetryOnLowQuality bool
}

// EvaluationResult is the Evaluator's verdict on one AgentResult.
type EvaluationResult struct {
	Passed          bool
	Score           float64
	Issues          []string
	RetryRecommended bool
	RetryReason     string
}

// DefaultAgentTimeouts is the fallback per-agent-kind timeout table.
func DefaultAgentTimeouts() map[AgentKind]time.Duration {
	return map[AgentKind]time.Duration{
		AgentRAG:     120 * time.Second,
		AgentIMS:     180 * time.Second,
		AgentVision:  90 * time.Second,
		AgentCode:    180 * time.Second,
		AgentPlanner: 60 * time.Second,
	}
}

// DefaultFallbackTimeout is used for agent kinds absent from the table.
const DefaultFallbackTimeout = 300 * time.Second
