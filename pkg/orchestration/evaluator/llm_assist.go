package evaluator

import (
	"context"
	"strconv"
	"strings"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// EvaluateWithLLM prompts the LLM for a SCORE/ISSUES/RETRY verdict and
// parses it; on any parse failure (or if no LLM is configured) it falls
// back to EvaluateTask's rule-based result.
func (e *Evaluator) EvaluateWithLLM(ctx context.Context, task string, result types.AgentResult, criteria types.EvaluationCriteria) types.EvaluationResult {
	if e.llm == nil {
		return e.EvaluateTask(task, result, criteria)
	}

	raw, err := e.llm.EvaluateResult(ctx, task, result.Answer)
	if err != nil {
		return e.EvaluateTask(task, result, criteria)
	}

	score, issues, retry, ok := ParseLLMEvaluation(raw)
	if !ok {
		return e.EvaluateTask(task, result, criteria)
	}

	passed := score >= criteria.MinConfidence && result.Success
	eval := types.EvaluationResult{Passed: passed, Score: score, Issues: issues}
	if !passed {
		eval.RetryRecommended = retry
		if retry {
			eval.RetryReason = "llm-recommended"
		}
	}
	return eval
}

// ParseLLMEvaluation parses an LLM's raw "SCORE: x\nISSUES: a,b\nRETRY: yes"
// reply. ok is false if the SCORE line is missing or unparsable, in which
// case the caller should fall back to the rule evaluator.
func ParseLLMEvaluation(raw string) (score float64, issues []string, retry bool, ok bool) {
	lines := strings.Split(raw, "\n")
	found := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "SCORE:"):
			v := strings.TrimSpace(line[len("SCORE:"):])
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0, nil, false, false
			}
			score = clamp(parsed, 0, 1)
			found = true
		case strings.HasPrefix(strings.ToUpper(line), "ISSUES:"):
			v := strings.TrimSpace(line[len("ISSUES:"):])
			if !strings.EqualFold(v, "none") && v != "" {
				for _, part := range strings.Split(v, ",") {
					if p := strings.TrimSpace(part); p != "" {
						issues = append(issues, p)
					}
				}
			}
		case strings.HasPrefix(strings.ToUpper(line), "RETRY:"):
			v := strings.ToLower(strings.TrimSpace(line[len("RETRY:"):]))
			retry = v == "yes" || v == "true"
		}
	}
	if !found {
		return 0, nil, false, false
	}
	return score, issues, retry, true
}
