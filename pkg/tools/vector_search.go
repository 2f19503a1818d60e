// Package tools holds the concrete toolregistry.Tool implementations the
// Agent Executor invokes during its Reason-Act loop (SPEC_FULL.md §6).
package tools

import (
	"context"
	"fmt"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
	"github.com/kbagents/orchestrator/pkg/vectorstore"
)

// VectorSearchArgs are the LLM-facing parameters for vector_search.
type VectorSearchArgs struct {
	Query    string `json:"query" jsonschema:"required,description=The text to search for"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"description=Number of results to return,default=5"`
	Language string `json:"language,omitempty" jsonschema:"description=Language hint for the query"`
}

// VectorSearch wraps a vectorstore.Provider as a callable tool.
type VectorSearch struct {
	provider     vectorstore.Provider
	defaultTopK  int
}

func NewVectorSearch(provider vectorstore.Provider) *VectorSearch {
	return &VectorSearch{provider: provider, defaultTopK: 5}
}

func (t *VectorSearch) Name() string        { return "vector_search" }
func (t *VectorSearch) Description() string { return "Search the knowledge base by semantic similarity." }
func (t *VectorSearch) ArgsType() any        { return &VectorSearchArgs{} }
func (t *VectorSearch) RequiredArgs() []string { return []string{"query"} }

func (t *VectorSearch) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return types.ToolResult{Success: false, Error: "query is required"}, nil
	}
	topK := t.defaultTopK
	if v, ok := args["top_k"].(int); ok && v > 0 {
		topK = v
	} else if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}
	language := agentCtx.Language
	if v, ok := args["language"].(string); ok && v != "" {
		language = v
	}

	hits, err := t.provider.Query(ctx, query, topK, language)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("vector search failed: %s", err)}, nil
	}
	if len(hits) == 0 {
		return types.ToolResult{Success: true, Output: "No matching documents found."}, nil
	}

	output := ""
	sources := make([]string, 0, len(hits))
	for i, h := range hits {
		output += fmt.Sprintf("[%d] (score %.2f, source %s)\n%s\n\n", i+1, h.Score, h.Source, h.Content)
		sources = append(sources, h.Source)
	}
	return types.ToolResult{
		Success:  true,
		Output:   output,
		Metadata: map[string]any{"sources": sources, "count": len(hits)},
	}, nil
}
