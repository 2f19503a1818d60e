package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kbagents/orchestrator/pkg/httpclient"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// Issue is one search hit from the issue tracker.
type Issue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// IMSSearchArgs are the LLM-facing parameters for ims_search.
type IMSSearchArgs struct {
	Query   string            `json:"query" jsonschema:"required,description=The text to search issues for"`
	Filters map[string]string `json:"filters,omitempty" jsonschema:"description=Optional field filters, e.g. status=open"`
}

// IMSSearchConfig points the tool at an issue-tracker REST endpoint.
type IMSSearchConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// IMSSearch queries an external issue-management system over HTTP, the same
// way webtool.NewWebRequest wires up an httpclient.Client against an
// external service.
type IMSSearch struct {
	cfg    IMSSearchConfig
	client *httpclient.Client
}

func NewIMSSearch(cfg IMSSearchConfig) *IMSSearch {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &IMSSearch{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}
}

func (t *IMSSearch) Name() string          { return "ims_search" }
func (t *IMSSearch) Description() string   { return "Search issues tracked in the issue management system." }
func (t *IMSSearch) ArgsType() any          { return &IMSSearchArgs{} }
func (t *IMSSearch) RequiredArgs() []string { return []string{"query"} }

type imsSearchRequest struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
}

type imsSearchResponse struct {
	Results []Issue `json:"results"`
}

func (t *IMSSearch) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return types.ToolResult{Success: false, Error: "query is required"}, nil
	}
	filters := map[string]string{}
	if raw, ok := args["filters"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				filters[k] = s
			}
		}
	}

	body, err := json.Marshal(imsSearchRequest{Query: query, Filters: filters})
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/issues/search", bytes.NewReader(body))
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("issue tracker request failed: %s", err)}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	var parsed imsSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("decoding issue tracker response: %s", err)}, nil
	}
	if len(parsed.Results) == 0 {
		return types.ToolResult{Success: true, Output: "No matching issues found."}, nil
	}

	output := ""
	sources := make([]string, 0, len(parsed.Results))
	for _, issue := range parsed.Results {
		output += fmt.Sprintf("[%s] (%s) %s\n%s\n\n", issue.ID, issue.Status, issue.Title, issue.Description)
		sources = append(sources, "issue#"+issue.ID)
	}
	return types.ToolResult{
		Success:  true,
		Output:   output,
		Metadata: map[string]any{"sources": sources, "count": len(parsed.Results)},
	}, nil
}
