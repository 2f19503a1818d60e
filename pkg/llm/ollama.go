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

const ollamaDefaultHost = "http://localhost:11434"

type ollamaProvider struct {
	cfg    ProviderConfig
	client *httpclient.Client
}

func newOllamaProvider(cfg ProviderConfig) (*ollamaProvider, error) {
	if cfg.Host == "" {
		cfg.Host = ollamaDefaultHost
	}
	return &ollamaProvider{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		),
	}, nil
}

func (p *ollamaProvider) ModelName() string { return p.cfg.Model }

type ollamaMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Type     string `json:"type"`
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Parameters  interface{} `json:"parameters"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
	Tools    []ollamaTool   `json:"tools,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (p *ollamaProvider) Generate(ctx context.Context, messages []types.AgentMessage, tools []toolregistry.Definition) (types.AgentMessage, error) {
	req := ollamaRequest{
		Model:   p.cfg.Model,
		Stream:  false,
		Options: &ollamaOptions{Temperature: p.cfg.Temperature, NumPredict: p.cfg.MaxTokens},
	}
	for _, m := range messages {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, ToolName: m.Name}
		for _, tc := range m.ToolCalls {
			otc := ollamaToolCall{Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Args
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		req.Messages = append(req.Messages, om)
	}
	for _, t := range tools {
		ot := ollamaTool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, ot)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: encoding ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return types.AgentMessage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.AgentMessage{}, err
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: decoding ollama response: %w", err)
	}
	if parsed.Error != "" {
		return types.AgentMessage{}, fmt.Errorf("llm: ollama error: %s", parsed.Error)
	}

	out := types.AgentMessage{Role: types.RoleAssistant, Content: parsed.Message.Content, Timestamp: time.Now()}
	for _, tc := range parsed.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{Name: tc.Function.Name, Args: tc.Function.Arguments, ID: types.NewToolCallID()})
	}
	return out, nil
}
