package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Client adapts a single Provider into every small LLM-collaborator
// interface the orchestration packages define for themselves (agentexec.
// ChatClient, dag.LLMDecomposer, evaluator.LLMEvaluator, intent.
// LLMClassifier, orchestrator.SynthesisLLM, orchestrator.NextActionLLM),
// so the whole orchestration stack can be wired against one concrete value
// while each package stays decoupled from this one at the interface level.
type Client struct {
	provider Provider
}

// NewClient wraps provider as a Client.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat satisfies agentexec.ChatClient.
func (c *Client) Chat(ctx context.Context, messages []types.AgentMessage, tools []toolregistry.Definition) (types.AgentMessage, error) {
	return c.provider.Generate(ctx, messages, tools)
}

// DecomposeTask satisfies dag.LLMDecomposer: it asks the model for a JSON
// subtask breakdown and returns the raw text for the dag package's own
// tolerant parsing.
func (c *Client) DecomposeTask(ctx context.Context, task, language string) (string, error) {
	prompt := decompositionPrompt(task, language)
	resp, err := c.provider.Generate(ctx, []types.AgentMessage{
		{Role: types.RoleSystem, Content: decompositionSystemPrompt},
		{Role: types.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ClassifyIntent satisfies intent.LLMClassifier.
func (c *Client) ClassifyIntent(ctx context.Context, task string) (types.IntentType, error) {
	resp, err := c.provider.Generate(ctx, []types.AgentMessage{
		{Role: types.RoleSystem, Content: intentClassificationSystemPrompt},
		{Role: types.RoleUser, Content: task},
	}, nil)
	if err != nil {
		return types.IntentUnknown, err
	}
	return parseIntentType(resp.Content), nil
}

// EvaluateResult satisfies evaluator.LLMEvaluator, returning the raw
// "SCORE:/ISSUES:/RETRY:" formatted text for evaluator.ParseLLMEvaluation.
func (c *Client) EvaluateResult(ctx context.Context, task, answer string) (string, error) {
	resp, err := c.provider.Generate(ctx, []types.AgentMessage{
		{Role: types.RoleSystem, Content: evaluationSystemPrompt},
		{Role: types.RoleUser, Content: fmt.Sprintf("Task: %s\n\nAnswer: %s", task, answer)},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Synthesize satisfies orchestrator.SynthesisLLM, merging combined
// per-subtask answers into one coherent reply in the requested language.
func (c *Client) Synthesize(ctx context.Context, originalTask, combined, language string) (string, error) {
	resp, err := c.provider.Generate(ctx, []types.AgentMessage{
		{Role: types.RoleSystem, Content: synthesisSystemPrompt(language)},
		{Role: types.RoleUser, Content: fmt.Sprintf("Original request: %s\n\n%s", originalTask, combined)},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// SuggestNextActions satisfies orchestrator.NextActionLLM.
func (c *Client) SuggestNextActions(ctx context.Context, originalTask, answer, language string) (string, error) {
	resp, err := c.provider.Generate(ctx, []types.AgentMessage{
		{Role: types.RoleSystem, Content: nextActionsSystemPrompt(language)},
		{Role: types.RoleUser, Content: fmt.Sprintf("Request: %s\n\nAnswer: %s", originalTask, answer)},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ClassifyAgentKind satisfies orchestrator.AgentKindLLM, the use_llm=true
// path of classify_task.
func (c *Client) ClassifyAgentKind(ctx context.Context, task string) (types.AgentKind, error) {
	resp, err := c.provider.Generate(ctx, []types.AgentMessage{
		{Role: types.RoleSystem, Content: agentKindClassificationSystemPrompt},
		{Role: types.RoleUser, Content: task},
	}, nil)
	if err != nil {
		return "", err
	}
	return types.AgentKind(strings.ToLower(strings.TrimSpace(resp.Content))), nil
}

const decompositionSystemPrompt = `You break a user request into an ordered set of subtasks for specialist agents (rag, ims, vision, code, planner). Respond with a single JSON object: {"subtasks":[{"id","description","agent_type","dependencies":[]}],"parallelism":"full|pipeline|partial|none"}. Use ids task_1, task_2, ... Do not include any text outside the JSON object.`

func decompositionPrompt(task, language string) string {
	return fmt.Sprintf("Language: %s\nRequest: %s", language, task)
}

const intentClassificationSystemPrompt = `Classify the user's intent as exactly one of: search, list_all, detail, analyze, create, update, delete, unknown. Respond with only that single word.`

const agentKindClassificationSystemPrompt = `Classify which specialist agent should handle the user's request: rag (knowledge-base questions), ims (issue/ticket investigation), vision (images, charts, diagrams), code (reading or running code), planner (multi-step requests needing decomposition). Respond with only that single word.`

func parseIntentType(raw string) types.IntentType {
	word := strings.ToLower(strings.TrimSpace(raw))
	switch types.IntentType(word) {
	case types.IntentSearch, types.IntentListAll, types.IntentDetail, types.IntentAnalyze, types.IntentCreate, types.IntentUpdate, types.IntentDelete:
		return types.IntentType(word)
	default:
		return types.IntentUnknown
	}
}

const evaluationSystemPrompt = `Evaluate whether the answer actually addresses the task. Respond in exactly this format:
SCORE: <0.0-1.0>
ISSUES: <comma-separated issues, or "none">
RETRY: <yes|no>`

func synthesisSystemPrompt(language string) string {
	switch language {
	case "ko":
		return "당신은 여러 하위 작업의 결과를 하나의 일관된 답변으로 종합하는 어시스턴트입니다. 자연스러운 한국어로 응답하세요."
	case "ja":
		return "複数のサブタスクの結果を一つの首尾一貫した回答に統合するアシスタントです。自然な日本語で応答してください。"
	default:
		return "You are an assistant that synthesizes multiple subtask results into one coherent answer. Respond in natural English."
	}
}

func nextActionsSystemPrompt(language string) string {
	switch language {
	case "ko":
		return "답변을 바탕으로 사용자가 다음에 할 수 있는 2-3가지 후속 작업을 제안하세요. 각 항목은 \"- \"로 시작하는 줄로 작성하세요."
	case "ja":
		return "回答を基に、ユーザーが次に取れる2〜3個のフォローアップ行動を提案してください。各項目は \"- \" で始まる行にしてください。"
	default:
		return "Based on the answer, suggest 2-3 follow-up actions the user could take next. Write each as a line starting with \"- \"."
	}
}
