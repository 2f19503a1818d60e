package evaluator

import (
	"regexp"
	"strings"
)

var doublePeriod = regexp.MustCompile(`\.\.+`)
var tripleWordRepeat = regexp.MustCompile(`\b(\w+)\s+\1\s+\1\b`)
var repeatedConjunctions = []string{"and and", "but but", "그리고 그리고", "しかし しかし"}

const (
	synthesisMinLength  = 20
	synthesisLowCoverage = 0.2
)

// SynthesisEvaluator scores a synthesized answer against the per-subtask
// results it was built from.
type SynthesisEvaluator struct{}

// NewSynthesisEvaluator creates a SynthesisEvaluator.
func NewSynthesisEvaluator() *SynthesisEvaluator {
	return &SynthesisEvaluator{}
}

// Evaluate scores synthesis against subResults (subtask id -> answer text).
func (s *SynthesisEvaluator) Evaluate(synthesis string, subResults map[string]string) (score float64, issues []string) {
	score = 1.0

	if len(strings.TrimSpace(synthesis)) < synthesisMinLength {
		score -= 0.3
		issues = append(issues, "synthesis too short")
	}

	coverage := s.coverage(synthesis, subResults)
	if coverage < synthesisLowCoverage {
		score -= 0.3
		issues = append(issues, "low coverage of sub-results")
	}

	if doublePeriod.MatchString(synthesis) {
		score -= 0.1
		issues = append(issues, "incoherent punctuation")
	}
	lower := strings.ToLower(synthesis)
	for _, rc := range repeatedConjunctions {
		if strings.Contains(lower, rc) {
			score -= 0.1
			issues = append(issues, "repeated conjunction")
			break
		}
	}
	if tripleWordRepeat.MatchString(synthesis) {
		score -= 0.1
		issues = append(issues, "triple word repeat")
	}

	return clamp(score, 0, 1), issues
}

// coverage is the fraction of sub-results at least 20% of whose words
// (length >= 5) appear in the synthesis, as required by the coverage
// definition.
func (s *SynthesisEvaluator) coverage(synthesis string, subResults map[string]string) float64 {
	if len(subResults) == 0 {
		return 1.0
	}
	lowerSynthesis := strings.ToLower(synthesis)
	covered := 0
	for _, answer := range subResults {
		words := keywordsOver(answer, 4) // length >= 5 means rune length > 4
		if len(words) == 0 {
			covered++
			continue
		}
		hits := 0
		for _, w := range words {
			if strings.Contains(lowerSynthesis, w) {
				hits++
			}
		}
		if float64(hits)/float64(len(words)) >= 0.2 {
			covered++
		}
	}
	return float64(covered) / float64(len(subResults))
}
