// Package intent implements the two-tier (rule + LLM) intent classifier
// described by SPEC_FULL.md §4.3, grounded on original_source's intent.py.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// LLMClassifier is the minimal LLM collaborator the classifier falls back
// to when rule-tier confidence is low. Implementations live in pkg/llm.
type LLMClassifier interface {
	ClassifyIntent(ctx context.Context, task string) (types.IntentType, error)
}

type keywordSet struct {
	positive []string
	negative []string
}

// intentKeywords holds multilingual (English, Korean, Japanese) positive and
// negative pattern votes per intent label.
var intentKeywords = map[types.IntentType]keywordSet{
	types.IntentSearch: {
		positive: []string{"search", "find", "look for", "what is", "how to", "찾아", "검색", "뭐야", "検索", "探して"},
		negative: []string{"list all", "모든", "すべて"},
	},
	types.IntentListAll: {
		positive: []string{"list all", "show all", "all of", "목록", "전체", "一覧", "すべて表示"},
		negative: []string{},
	},
	types.IntentDetail: {
		positive: []string{"detail", "details of", "tell me more", "자세히", "상세", "詳細", "詳しく"},
		negative: []string{},
	},
	types.IntentAnalyze: {
		positive: []string{"analyze", "analysis", "why does", "root cause", "분석", "원인", "分析", "原因"},
		negative: []string{},
	},
	types.IntentCreate: {
		positive: []string{"create", "add", "new", "생성", "추가", "作成", "追加"},
		negative: []string{},
	},
	types.IntentUpdate: {
		positive: []string{"update", "change", "modify", "edit", "수정", "변경", "更新", "変更"},
		negative: []string{},
	},
	types.IntentDelete: {
		positive: []string{"delete", "remove", "삭제", "제거", "削除"},
		negative: []string{},
	},
}

// issueIDPattern matches a 5-8 digit number, the domain-specific shape of an
// issue/ticket id.
var issueIDPattern = regexp.MustCompile(`\b\d{5,8}\b`)

var userSpecificPattern = regexp.MustCompile(`(?i)\b(my|assigned to me|내가|내\s*것|自分の)\b`)

var productExtractionPattern = regexp.MustCompile(`(?i)\b(for|about|관련|について)\s+([a-zA-Z0-9_\-]{2,40})`)

// Classifier implements the two-tier intent classification algorithm.
type Classifier struct {
	llm LLMClassifier
	log *slog.Logger
}

// New creates a Classifier. llm may be nil, in which case the LLM tier is
// skipped entirely.
func New(llm LLMClassifier, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{llm: llm, log: log}
}

// Classify runs the rule tier and, if confidence is below 0.6, the LLM tier.
// agentKind informs the no-match default (Search for IMS, Unknown otherwise).
func (c *Classifier) Classify(ctx context.Context, task string, agentKind types.AgentKind) types.IntentResult {
	taskLower := strings.ToLower(task)

	scores := map[types.IntentType]int{}
	for label, kw := range intentKeywords {
		positive, negative := 0, 0
		for _, p := range kw.positive {
			if strings.Contains(taskLower, strings.ToLower(p)) {
				positive++
			}
		}
		for _, n := range kw.negative {
			if strings.Contains(taskLower, strings.ToLower(n)) {
				negative++
			}
		}
		score := positive - 2*negative
		if score < 0 {
			score = 0
		}
		scores[label] = score
	}

	extracted := map[string]any{}
	issueID := ""
	if m := issueIDPattern.FindString(task); m != "" {
		issueID = m
		extracted["issue_id"] = m
		if scores[types.IntentDetail] > 0 || scores[types.IntentAnalyze] > 0 {
			scores[types.IntentDetail] += 2
			scores[types.IntentAnalyze] += 1
		} else if allZero(scores) {
			scores[types.IntentDetail] = 1
		}
	}
	if userSpecificPattern.MatchString(task) {
		extracted["user_specific"] = true
	}
	if m := productExtractionPattern.FindStringSubmatch(task); len(m) == 3 {
		extracted["product"] = m[2]
	}
	_ = issueID

	bestLabel, bestScore := pickBest(scores)
	total := 0
	for _, s := range scores {
		total += s
	}
	confidence := 0.0
	if total > 0 {
		confidence = float64(bestScore) / float64(total)
	}

	if bestScore == 0 {
		if c.llm != nil {
			return c.classifyWithLLM(ctx, task, extracted)
		}
		if agentKind == types.AgentIMS {
			return types.IntentResult{Intent: types.IntentSearch, Confidence: 0.5, ExtractedParams: extracted, Method: types.MethodRules}
		}
		return types.IntentResult{Intent: types.IntentUnknown, Confidence: 0.0, ExtractedParams: extracted, Method: types.MethodRules}
	}

	if confidence < 0.6 && c.llm != nil {
		return c.classifyWithLLM(ctx, task, extracted)
	}

	return types.IntentResult{Intent: bestLabel, Confidence: confidence, ExtractedParams: extracted, Method: types.MethodRules}
}

func (c *Classifier) classifyWithLLM(ctx context.Context, task string, extracted map[string]any) types.IntentResult {
	label, err := c.llm.ClassifyIntent(ctx, task)
	if err != nil {
		c.log.Warn("llm intent classification failed, falling back", "error", err)
		return types.IntentResult{Intent: types.IntentSearch, Confidence: 0.5, ExtractedParams: extracted, Method: types.MethodRulesFallback}
	}
	return types.IntentResult{Intent: label, Confidence: 0.8, ExtractedParams: extracted, Method: types.MethodLLM}
}

func allZero(scores map[types.IntentType]int) bool {
	for _, s := range scores {
		if s != 0 {
			return false
		}
	}
	return true
}

func pickBest(scores map[types.IntentType]int) (types.IntentType, int) {
	best := types.IntentUnknown
	bestScore := -1
	// Iterate AllAgentKinds-equivalent stable order over a fixed label list
	// so ties resolve deterministically.
	order := []types.IntentType{
		types.IntentSearch, types.IntentListAll, types.IntentDetail, types.IntentAnalyze,
		types.IntentCreate, types.IntentUpdate, types.IntentDelete,
	}
	for _, label := range order {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return best, bestScore
}

// ParseIssueID is exported for tools (e.g. ims_search) that need the same
// 5-8 digit extraction rule the classifier uses.
func ParseIssueID(s string) (int, bool) {
	m := issueIDPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
