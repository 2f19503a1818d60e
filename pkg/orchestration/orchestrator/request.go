package orchestrator

import (
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/trace"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Request is the shared shape of a unary or streaming ask (SPEC_FULL.md §6).
type Request struct {
	Task         string
	AgentKind    types.AgentKind // empty means "classify"
	SessionID    string
	Language     string // "auto", "en", "ko", "ja"
	MaxSteps     int
	IncludeSources bool
	FileContext  string
	URLContext   string
	Config       *types.OrchestrationConfig // nil means DefaultOrchestrationConfig
}

// Response is the unary execute() result.
type Response struct {
	Answer          string
	AgentKind       types.AgentKind
	SessionID       string
	Steps           int
	Sources         []types.Source
	ExecutionTime   time.Duration
	Success         bool
	SubtaskResults  map[string]SubtaskSummary
	PartialFailures []string
	NextActions     []string
	Trace           []trace.Event
}

// SubtaskSummary is the trimmed per-subtask view returned to API callers.
type SubtaskSummary struct {
	Answer        string
	AgentKind     types.AgentKind
	Success       bool
	ExecutionTime time.Duration
}

const subtaskAnswerPreviewLimit = 500
