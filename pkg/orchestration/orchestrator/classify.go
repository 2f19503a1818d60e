package orchestrator

import (
	"context"
	"strings"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// AgentKindLLM is the LLM collaborator ClassifyWithLLM falls back to when
// the keyword table is inconclusive or the caller explicitly asks for an
// LLM-backed classification.
type AgentKindLLM interface {
	ClassifyAgentKind(ctx context.Context, task string) (types.AgentKind, error)
}

// ClassifyWithLLM is classify_task's use_llm=true path (SPEC_FULL.md §12): a
// distinct, separately callable operation from the keyword-scoring
// ClassifyTask, per original_source's split between the two. Falls back to
// ClassifyTask when no LLM classifier is configured or the call fails.
func (o *Orchestrator) ClassifyWithLLM(ctx context.Context, task string) (types.AgentKind, string, error) {
	if o.agentKindLLM == nil {
		return ClassifyTask(task), "keyword", nil
	}
	kind, err := o.agentKindLLM.ClassifyAgentKind(ctx, task)
	if err != nil {
		return ClassifyTask(task), "keyword", err
	}
	if !kind.Valid() {
		return ClassifyTask(task), "keyword", nil
	}
	return kind, "llm", nil
}

// agentKeywords is the per-agent-kind multilingual keyword table used by
// ClassifyTask, ported verbatim from original_source's AGENT_KEYWORDS.
var agentKeywords = map[types.AgentKind][]string{
	types.AgentRAG: {
		"what", "how", "why", "explain", "describe", "tell me",
		"knowledge", "information", "document", "article",
		"뭐", "무엇", "어떻게", "왜", "설명", "알려",
		"何", "どう", "なぜ", "説明",
	},
	types.AgentIMS: {
		"issue", "bug", "error", "problem", "ticket",
		"ims", "jira", "defect", "fix", "resolved",
		"이슈", "버그", "오류", "문제", "티켓",
		"バグ", "エラー", "問題", "チケット",
	},
	types.AgentVision: {
		"image", "picture", "photo", "chart", "graph",
		"diagram", "figure", "screenshot", "visual",
		"이미지", "사진", "차트", "그래프", "다이어그램",
		"画像", "写真", "チャート", "グラフ",
	},
	types.AgentCode: {
		"code", "program", "function", "class", "implement",
		"debug", "compile", "script", "algorithm",
		"코드", "프로그램", "함수", "클래스", "구현",
		"コード", "プログラム", "関数", "クラス",
	},
	types.AgentPlanner: {
		"plan", "strategy", "approach", "steps", "roadmap",
		"breakdown", "decompose", "organize", "schedule",
		"계획", "전략", "접근", "단계", "로드맵",
		"計画", "戦略", "アプローチ", "ステップ",
	},
}

// ClassifyTask scores task against the multilingual keyword table and
// returns the winning agent kind: ties default to RAG when RAG is among
// the tied leaders, and a total absence of matches defaults to RAG.
func ClassifyTask(task string) types.AgentKind {
	lower := strings.ToLower(task)

	scores := make(map[types.AgentKind]int, len(types.AllAgentKinds))
	for _, kind := range types.AllAgentKinds {
		scores[kind] = 0
	}
	for kind, keywords := range agentKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				scores[kind]++
			}
		}
	}

	bestKind := types.AgentRAG
	bestScore := -1
	for _, kind := range types.AllAgentKinds {
		if scores[kind] > bestScore {
			bestKind = kind
			bestScore = scores[kind]
		}
	}

	if bestScore == 0 {
		return types.AgentRAG
	}

	var tied []types.AgentKind
	for _, kind := range types.AllAgentKinds {
		if scores[kind] == bestScore {
			tied = append(tied, kind)
		}
	}
	if len(tied) > 1 {
		for _, kind := range tied {
			if kind == types.AgentRAG {
				return types.AgentRAG
			}
		}
	}

	return bestKind
}
