package tools

import (
	"context"
	"fmt"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
	"github.com/kbagents/orchestrator/pkg/vectorstore"
)

// GraphQueryArgs are the LLM-facing parameters for graph_query.
type GraphQueryArgs struct {
	Query     string `json:"query" jsonschema:"required,description=The text to search for"`
	QueryType string `json:"query_type,omitempty" jsonschema:"description=One of entity, relation, path,enum=entity|relation|path,default=entity"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"description=Number of results to return,default=5"`
}

// GraphQuery wraps a vectorstore.GraphProvider as a callable tool.
type GraphQuery struct {
	provider    *vectorstore.GraphProvider
	defaultTopK int
}

func NewGraphQuery(provider *vectorstore.GraphProvider) *GraphQuery {
	return &GraphQuery{provider: provider, defaultTopK: 5}
}

func (t *GraphQuery) Name() string          { return "graph_query" }
func (t *GraphQuery) Description() string   { return "Query entities and relations extracted from the knowledge base." }
func (t *GraphQuery) ArgsType() any          { return &GraphQueryArgs{} }
func (t *GraphQuery) RequiredArgs() []string { return []string{"query"} }

func (t *GraphQuery) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return types.ToolResult{Success: false, Error: "query is required"}, nil
	}
	queryType := vectorstore.GraphQueryEntity
	if v, ok := args["query_type"].(string); ok && v != "" {
		queryType = vectorstore.GraphQueryType(v)
	}
	topK := t.defaultTopK
	if v, ok := args["top_k"].(int); ok && v > 0 {
		topK = v
	} else if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	hits, err := t.provider.Query(ctx, query, queryType, topK)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("graph query failed: %s", err)}, nil
	}
	if len(hits) == 0 {
		return types.ToolResult{Success: true, Output: "No matching entities or relations found."}, nil
	}

	output := ""
	sources := make([]string, 0, len(hits))
	for i, h := range hits {
		output += fmt.Sprintf("[%d] source=%s entities=%v relations=%v\n%s\n\n", i+1, h.Source, h.Entities, h.Relations, h.Content)
		sources = append(sources, h.Source)
	}
	return types.ToolResult{
		Success:  true,
		Output:   output,
		Metadata: map[string]any{"sources": sources, "count": len(hits)},
	}, nil
}
