// Package evaluator scores an AgentResult's quality and recommends retries
// (SPEC_FULL.md §4.7), grounded on original_source's result-evaluation
// module for the exact deduction amounts and multilingual sentinel phrases.
package evaluator

import (
	"context"
	"regexp"
	"strings"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// sentinelPhrases lists multilingual "no information / error" markers that
// each cost 0.15 off the score, once each.
var sentinelPhrases = []string{
	"i don't know", "i do not know", "no information", "not found", "an error occurred", "error occurred",
	"잘 모르겠", "정보가 없", "찾을 수 없", "오류가 발생",
	"わかりません", "情報がありません", "見つかりません", "エラーが発生",
}

var transientErrorPattern = regexp.MustCompile(`(?i)timeout|connection|temporarily|rate limit|503|502|504|overloaded`)

// LLMEvaluator is the optional LLM collaborator for assisted evaluation.
// Implementations live in pkg/llm.
type LLMEvaluator interface {
	EvaluateResult(ctx context.Context, task, answer string) (string, error)
}

// Evaluator implements the rule-based (and optional LLM-assisted) scoring
// pass over an AgentResult.
type Evaluator struct {
	llm LLMEvaluator
}

// New creates an Evaluator. llm may be nil, in which case only the rule
// evaluator runs.
func New(llm LLMEvaluator) *Evaluator {
	return &Evaluator{llm: llm}
}

// Evaluate scores result against criteria using the rule-based algorithm.
func (e *Evaluator) Evaluate(result types.AgentResult, criteria types.EvaluationCriteria) types.EvaluationResult {
	score := 1.0
	var issues []string

	if !result.Success {
		score -= 0.5
		issues = append(issues, "execution failed")
	}

	if criteria.MinAnswerLength > 0 && len(result.Answer) < criteria.MinAnswerLength {
		score -= 0.2
		issues = append(issues, "answer too short")
	}

	lowerAnswer := strings.ToLower(result.Answer)
	for _, phrase := range sentinelPhrases {
		if strings.Contains(lowerAnswer, phrase) {
			score -= 0.15
			issues = append(issues, "answer signals missing information")
		}
	}

	if overlap := wordOverlap(result.Metadata, result.Answer); overlap >= 0 && overlap < 0.3 {
		score -= 0.2
		issues = append(issues, "low relevance to task keywords")
	}

	if criteria.RequireSources && len(result.Sources) == 0 {
		score -= 0.15
		issues = append(issues, "missing required sources")
	}

	if criteria.MaxExecutionTime != nil && result.ExecutionTime > *criteria.MaxExecutionTime {
		score -= 0.1
		issues = append(issues, "execution time exceeded cap")
	}

	score = clamp(score, 0, 1)
	passed := score >= criteria.MinConfidence && result.Success

	eval := types.EvaluationResult{Passed: passed, Score: score, Issues: issues}
	if !passed {
		eval.RetryRecommended, eval.RetryReason = recommendRetry(score, criteria.MinConfidence, result.Error)
	}
	return eval
}

// EvaluateTask is like Evaluate but also has access to the original task
// text, enabling the word-overlap relevance check. Prefer this over
// Evaluate when the task text is available.
func (e *Evaluator) EvaluateTask(task string, result types.AgentResult, criteria types.EvaluationCriteria) types.EvaluationResult {
	score := 1.0
	var issues []string

	if !result.Success {
		score -= 0.5
		issues = append(issues, "execution failed")
	}
	if criteria.MinAnswerLength > 0 && len(result.Answer) < criteria.MinAnswerLength {
		score -= 0.2
		issues = append(issues, "answer too short")
	}
	lowerAnswer := strings.ToLower(result.Answer)
	for _, phrase := range sentinelPhrases {
		if strings.Contains(lowerAnswer, phrase) {
			score -= 0.15
			issues = append(issues, "answer signals missing information")
		}
	}
	if overlap := keywordOverlap(task, result.Answer); overlap < 0.3 {
		score -= 0.2
		issues = append(issues, "low relevance to task keywords")
	}
	if criteria.RequireSources && len(result.Sources) == 0 {
		score -= 0.15
		issues = append(issues, "missing required sources")
	}
	if criteria.MaxExecutionTime != nil && result.ExecutionTime > *criteria.MaxExecutionTime {
		score -= 0.1
		issues = append(issues, "execution time exceeded cap")
	}

	score = clamp(score, 0, 1)
	passed := score >= criteria.MinConfidence && result.Success

	eval := types.EvaluationResult{Passed: passed, Score: score, Issues: issues}
	if !passed {
		eval.RetryRecommended, eval.RetryReason = recommendRetry(score, criteria.MinConfidence, result.Error)
	}
	return eval
}

func recommendRetry(score, minConfidence float64, errMsg string) (bool, string) {
	if score >= minConfidence-0.2 && score < minConfidence {
		return true, "score near threshold"
	}
	if transientErrorPattern.MatchString(errMsg) {
		return true, "transient error"
	}
	return false, ""
}

// wordOverlap is a fallback used when only result.Metadata is available
// (e.g. a caller without the original task text); it returns -1 to signal
// "skip this check" rather than fabricate a relevance score.
func wordOverlap(metadata map[string]any, answer string) float64 {
	task, ok := metadata["task"].(string)
	if !ok || task == "" {
		return -1
	}
	return keywordOverlap(task, answer)
}

// keywordOverlap is the fraction of task keywords (length > 3) that appear
// in answer, case-insensitively.
func keywordOverlap(task, answer string) float64 {
	keywords := keywordsOver(task, 3)
	if len(keywords) == 0 {
		return 1.0
	}
	lowerAnswer := strings.ToLower(answer)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lowerAnswer, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func keywordsOver(s string, minLen int) []string {
	fields := strings.Fields(strings.ToLower(s))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) > minLen {
			out = append(out, f)
		}
	}
	return out
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
