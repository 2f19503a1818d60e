// Package dag decomposes a user task into a validated TaskDAG of subtasks
// (SPEC_FULL.md §4.4), grounded on original_source's task decomposition
// module: a short-circuit for simple questions, a multilingual regex rule
// tier, an optional LLM decomposition tier (which drops dependencies on
// unknown ids and maps unknown agent kinds to RAG), and an explicit
// post-build validation pass that rejects cycles and dangling references
// rather than repairing them.
package dag

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// LLMDecomposer is the optional LLM collaborator for the decomposition tier.
// Implementations live in pkg/llm.
type LLMDecomposer interface {
	DecomposeTask(ctx context.Context, task, language string) (string, error)
}

// ErrInvalidDAG is wrapped by every validation failure.
var ErrInvalidDAG = fmt.Errorf("dag: invalid")

var simpleQuestionPrefixes = []string{
	"what", "who", "when", "where", "why", "how", "is", "are", "do", "does", "can", "could",
	"무엇", "누구", "언제", "어디", "왜", "어떻게", "何", "誰", "いつ", "どこ", "なぜ", "どう",
}

var fullParallelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)compare\s+.+\s+(and|with|vs\.?)\s+.+`),
	regexp.MustCompile(`.+\s+(와|과)\s+.+\s*비교`),
	regexp.MustCompile(`.+\s+と\s+.+\s*(比較|くらべ)`),
}

var pipelinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)first\s+.+\s*,?\s*then\s+.+`),
	regexp.MustCompile(`먼저\s+.+\s*,?\s*그\s*다음\s+.+`),
	regexp.MustCompile(`まず\s+.+\s*,?\s*次に\s+.+`),
}

var compareConjunctions = []string{" and ", " vs ", " vs. ", "와 ", "과 ", "と"}

// Builder decomposes tasks into TaskDAGs.
type Builder struct {
	llm         LLMDecomposer
	useLLM      bool
	defaultKind types.AgentKind
}

// New creates a Builder. llm may be nil; useLLM controls whether the LLM
// tier is attempted even when llm is present (it mirrors the
// `use_llm`/`enable_parallel` request-level toggle).
func New(llm LLMDecomposer, useLLM bool) *Builder {
	return &Builder{llm: llm, useLLM: useLLM, defaultKind: types.AgentRAG}
}

// Build decomposes task into a validated TaskDAG. hint, if non-empty, is
// used for the single-node short-circuit and as the fallback kind for
// subtasks the LLM tier tags with an unrecognized agent type.
func (b *Builder) Build(ctx context.Context, task string, hint types.AgentKind, language string) (*types.TaskDAG, error) {
	kind := b.defaultKind
	if hint.Valid() {
		kind = hint
	}

	if isSimpleQuestion(task) {
		return b.singleNode(task, kind), nil
	}

	if parallelism, ok := matchFullParallel(task); ok {
		d, err := b.compareSplit(task, kind, parallelism)
		if err == nil {
			return d, nil
		}
	}
	if _, ok := matchPipeline(task); ok {
		return b.pipelineSplit(task, kind), nil
	}

	if b.useLLM && b.llm != nil {
		if d, err := b.llmDecompose(ctx, task, kind, language); err == nil {
			return d, nil
		}
	}

	return b.singleNode(task, kind), nil
}

func (b *Builder) singleNode(task string, kind types.AgentKind) *types.TaskDAG {
	id := "task_1"
	d := &types.TaskDAG{
		Tasks: map[string]*types.SubTask{
			id: {ID: id, Description: task, AgentKind: kind, Status: types.StatusPending},
		},
		RootTask:         id,
		ExecutionBatches: [][]string{{id}},
		Parallelism:      types.ParallelismNone,
	}
	return d
}

func (b *Builder) compareSplit(task string, kind types.AgentKind, parallelism types.ParallelismKind) (*types.TaskDAG, error) {
	left, right, ok := splitOnConjunction(task)
	if !ok {
		return nil, fmt.Errorf("dag: no conjunction split point found")
	}

	idA, idB, idSynth := "task_1", "task_2", "task_3"
	d := &types.TaskDAG{
		Tasks: map[string]*types.SubTask{
			idA: {ID: idA, Description: left, AgentKind: kind, Status: types.StatusPending},
			idB: {ID: idB, Description: right, AgentKind: kind, Status: types.StatusPending},
			idSynth: {
				ID: idSynth, Description: "Synthesize the comparison of: " + left + " and " + right,
				AgentKind: kind, Dependencies: []string{idA, idB}, Status: types.StatusPending,
				Metadata: map[string]any{"is_synthesis": true},
			},
		},
		RootTask:    idSynth,
		Parallelism: parallelism,
	}
	if err := computeBatches(d); err != nil {
		return nil, err
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (b *Builder) pipelineSplit(task string, kind types.AgentKind) *types.TaskDAG {
	parts := splitPipelineSteps(task)
	if len(parts) < 2 {
		return b.singleNode(task, kind)
	}

	d := &types.TaskDAG{Tasks: map[string]*types.SubTask{}, Parallelism: types.ParallelismPipeline}
	var prev string
	for i, part := range parts {
		id := fmt.Sprintf("task_%d", i+1)
		st := &types.SubTask{ID: id, Description: strings.TrimSpace(part), AgentKind: kind, Status: types.StatusPending}
		if prev != "" {
			st.Dependencies = []string{prev}
		}
		d.Tasks[id] = st
		prev = id
	}
	d.RootTask = prev
	if err := computeBatches(d); err != nil {
		return b.singleNode(task, kind)
	}
	if err := Validate(d); err != nil {
		return b.singleNode(task, kind)
	}
	return d
}

type llmSubtask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Dependencies []string `json:"dependencies"`
}

type llmDecomposition struct {
	Subtasks    []llmSubtask `json:"subtasks"`
	Parallelism string       `json:"parallelism"`
}

func (b *Builder) llmDecompose(ctx context.Context, task string, fallbackKind types.AgentKind, language string) (*types.TaskDAG, error) {
	raw, err := b.llm.DecomposeTask(ctx, task, language)
	if err != nil {
		return nil, err
	}

	jsonBody := extractJSONObject(raw)
	if jsonBody == "" {
		return nil, fmt.Errorf("dag: no JSON object found in LLM decomposition response")
	}

	var parsed llmDecomposition
	if err := json.Unmarshal([]byte(jsonBody), &parsed); err != nil {
		return nil, fmt.Errorf("dag: parsing LLM decomposition: %w", err)
	}
	if len(parsed.Subtasks) == 0 {
		return nil, fmt.Errorf("dag: LLM decomposition produced no subtasks")
	}

	ids := make(map[string]struct{}, len(parsed.Subtasks))
	for _, st := range parsed.Subtasks {
		ids[st.ID] = struct{}{}
	}

	d := &types.TaskDAG{Tasks: map[string]*types.SubTask{}, Parallelism: parseParallelism(parsed.Parallelism)}
	for _, st := range parsed.Subtasks {
		kind := types.AgentKind(strings.ToLower(st.AgentType))
		if !kind.Valid() {
			kind = fallbackKind
		}
		deps := make([]string, 0, len(st.Dependencies))
		for _, dep := range st.Dependencies {
			if _, ok := ids[dep]; ok && dep != st.ID {
				deps = append(deps, dep)
			}
		}
		d.Tasks[st.ID] = &types.SubTask{
			ID: st.ID, Description: st.Description, AgentKind: kind, Dependencies: deps, Status: types.StatusPending,
		}
	}
	d.RootTask = rootOf(d)

	if err := computeBatches(d); err != nil {
		return nil, err
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func rootOf(d *types.TaskDAG) string {
	for id, st := range d.Tasks {
		if st.IsSynthesis() {
			return id
		}
	}
	// fall back to whichever task nothing depends on, first by id order.
	dependedOn := map[string]struct{}{}
	for _, st := range d.Tasks {
		for _, dep := range st.Dependencies {
			dependedOn[dep] = struct{}{}
		}
	}
	ids := make([]string, 0, len(d.Tasks))
	for id := range d.Tasks {
		ids = append(ids, id)
	}
	ids = sortedCopy(ids)
	for _, id := range ids {
		if _, ok := dependedOn[id]; !ok {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func parseParallelism(s string) types.ParallelismKind {
	switch types.ParallelismKind(strings.ToLower(s)) {
	case types.ParallelismFull, types.ParallelismPartial, types.ParallelismPipeline:
		return types.ParallelismKind(strings.ToLower(s))
	default:
		return types.ParallelismNone
	}
}

// computeBatches fills ExecutionBatches with Kahn-style topological levels.
// It does not itself reject cycles; Validate is the authoritative check.
func computeBatches(d *types.TaskDAG) error {
	inDegree := map[string]int{}
	for id, st := range d.Tasks {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range st.Dependencies {
			_ = dep
		}
	}
	for _, st := range d.Tasks {
		inDegree[st.ID] = len(st.Dependencies)
	}

	remaining := map[string]struct{}{}
	for id := range d.Tasks {
		remaining[id] = struct{}{}
	}

	var batches [][]string
	for len(remaining) > 0 {
		var frontier []string
		for id := range remaining {
			if inDegree[id] == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			break // cycle or dangling dependency; Validate will report it
		}
		for _, id := range frontier {
			delete(remaining, id)
		}
		for id := range remaining {
			for _, dep := range d.Tasks[id].Dependencies {
				for _, done := range frontier {
					if dep == done {
						inDegree[id]--
					}
				}
			}
		}
		batches = append(batches, sortedCopy(frontier))
	}
	d.ExecutionBatches = batches
	return nil
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Validate enforces the DAG invariants: non-empty, acyclic, closed
// dependencies, and batches that partition the task set exactly.
func Validate(d *types.TaskDAG) error {
	if d == nil || len(d.Tasks) == 0 {
		return fmt.Errorf("%w: empty DAG", ErrInvalidDAG)
	}

	for id, st := range d.Tasks {
		for _, dep := range st.Dependencies {
			if _, ok := d.Tasks[dep]; !ok {
				return fmt.Errorf("%w: task %q depends on unknown task %q", ErrInvalidDAG, id, dep)
			}
		}
	}

	covered := map[string]struct{}{}
	for _, batch := range d.ExecutionBatches {
		for _, id := range batch {
			if _, ok := d.Tasks[id]; !ok {
				return fmt.Errorf("%w: batch references unknown task %q", ErrInvalidDAG, id)
			}
			if _, dup := covered[id]; dup {
				return fmt.Errorf("%w: task %q appears in more than one batch", ErrInvalidDAG, id)
			}
			covered[id] = struct{}{}
		}
	}
	if len(covered) != len(d.Tasks) {
		return fmt.Errorf("%w: batches do not cover every task (cycle or dangling dependency)", ErrInvalidDAG)
	}

	return nil
}

func isSimpleQuestion(task string) bool {
	trimmed := strings.TrimSpace(task)
	lower := strings.ToLower(trimmed)
	for _, prefix := range simpleQuestionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	tokens := strings.Fields(trimmed)
	return len(tokens) <= 10
}

func matchFullParallel(task string) (types.ParallelismKind, bool) {
	for _, p := range fullParallelPatterns {
		if p.MatchString(task) {
			return types.ParallelismFull, true
		}
	}
	return "", false
}

func matchPipeline(task string) (types.ParallelismKind, bool) {
	for _, p := range pipelinePatterns {
		if p.MatchString(task) {
			return types.ParallelismPipeline, true
		}
	}
	return "", false
}

func splitOnConjunction(task string) (left, right string, ok bool) {
	lower := strings.ToLower(task)
	for _, conj := range compareConjunctions {
		if idx := strings.Index(lower, conj); idx > 0 {
			left = strings.TrimSpace(task[:idx])
			right = strings.TrimSpace(task[idx+len(conj):])
			if left != "" && right != "" {
				return left, right, true
			}
		}
	}
	return "", "", false
}

func splitPipelineSteps(task string) []string {
	lower := strings.ToLower(task)
	markers := []string{"then", "그 다음", "次に"}
	for _, marker := range markers {
		if idx := strings.Index(lower, marker); idx > 0 {
			first := strings.TrimSpace(task[:idx])
			second := strings.TrimSpace(task[idx+len(marker):])
			first = strings.TrimPrefix(strings.TrimPrefix(first, "first"), "먼저")
			first = strings.TrimPrefix(first, "まず")
			return []string{strings.TrimSpace(first), second}
		}
	}
	return nil
}

// extractJSONObject strips common code-fence wrappers and returns the first
// balanced {...} object found in s, or "" if none is found.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
