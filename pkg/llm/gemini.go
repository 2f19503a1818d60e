package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// geminiProvider is the only backend here that talks to its API through an
// SDK rather than a raw httpclient call, since the Gemini Go client already
// handles request shaping and retries itself.
type geminiProvider struct {
	cfg    ProviderConfig
	client *genai.Client
}

func newGeminiProvider(cfg ProviderConfig) (*geminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini provider requires an API key")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("llm: creating gemini client: %w", err)
	}
	return &geminiProvider{cfg: cfg, client: client}, nil
}

func (p *geminiProvider) ModelName() string { return p.cfg.Model }

func (p *geminiProvider) Generate(ctx context.Context, messages []types.AgentMessage, tools []toolregistry.Definition) (types.AgentMessage, error) {
	var system string
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case types.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case types.RoleTool:
			part := genai.NewPartFromFunctionResponse(m.Name, map[string]any{"result": m.Content})
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		case types.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Args))
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.cfg.Temperature)),
		MaxOutputTokens: int32(p.cfg.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name: t.Name, Description: t.Description, ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, cfg)
	if err != nil {
		return types.AgentMessage{}, fmt.Errorf("llm: gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return types.AgentMessage{}, fmt.Errorf("llm: gemini response had no candidates")
	}

	out := types.AgentMessage{Role: types.RoleAssistant, Timestamp: time.Now()}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID: types.NewToolCallID(), Name: part.FunctionCall.Name, Args: part.FunctionCall.Args,
			})
		}
	}
	return out, nil
}
