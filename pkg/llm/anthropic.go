package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kbagents/orchestrator/pkg/httpclient"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

type anthropicProvider struct {
	cfg    ProviderConfig
	client *httpclient.Client
}

func newAnthropicProvider(cfg ProviderConfig) (*anthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic provider requires an API key")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.anthropic.com"
	}
	return &anthropicProvider{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}, nil
}

func (p *anthropicProvider) ModelName() string { return p.cfg.Model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicToolDef `json:"tools,omitempty"`
}

type anthropicToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string                  `json:"type"`
	Text      string                  `json:"text,omitempty"`
	ID        string                  `json:"id,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Input     *map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                  `json:"tool_use_id,omitempty"`
	Content   string                  `json:"content,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *anthropicProvider) Generate(ctx context.Context, messages []types.AgentMessage, tools []toolregistry.Definition) (types.AgentMessage, error) {
	req := p.buildRequest(messages, tools)

	body, err := json.Marshal(req)
	if err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: encoding anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return types.AgentMessage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.AgentMessage{}, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: decoding anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: anthropic API error: %s", parsed.Error.Message)
	}

	out := types.AgentMessage{Role: types.RoleAssistant, Timestamp: time.Now()}
	for _, c := range parsed.Content {
		switch c.Type {
		case "text":
			out.Content += c.Text
		case "tool_use":
			var args map[string]interface{}
			if c.Input != nil {
				args = *c.Input
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: c.ID, Name: c.Name, Args: args})
		}
	}
	return out, nil
}

func (p *anthropicProvider) buildRequest(messages []types.AgentMessage, tools []toolregistry.Definition) anthropicRequest {
	var systemParts string
	var anthMessages []anthropicMessage

	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			if systemParts != "" {
				systemParts += "\n\n"
			}
			systemParts += m.Content
		case types.RoleUser:
			anthMessages = append(anthMessages, anthropicMessage{Role: "user", Content: []anthropicContent{{Type: "text", Text: m.Content}}})
		case types.RoleTool:
			anthMessages = append(anthMessages, anthropicMessage{Role: "user", Content: []anthropicContent{{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}}})
		case types.RoleAssistant:
			var contents []anthropicContent
			if m.Content != "" {
				contents = append(contents, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]interface{}{}
				}
				contents = append(contents, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: &args})
			}
			anthMessages = append(anthMessages, anthropicMessage{Role: "assistant", Content: contents})
		}
	}

	req := anthropicRequest{
		Model: p.cfg.Model, Messages: anthMessages, MaxTokens: p.cfg.MaxTokens, Temperature: p.cfg.Temperature, System: systemParts,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicToolDef{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return req
}
