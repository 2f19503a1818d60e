package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// MCPProxyArgs are the LLM-facing parameters for mcp_proxy: the name of the
// tool as advertised by the external MCP server, plus its arguments.
type MCPProxyArgs struct {
	ToolName  string         `json:"tool_name" jsonschema:"required,description=Name of the tool exposed by the MCP server"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"description=Arguments to pass to the MCP tool"`
}

// MCPProxy is a single Tool Registry entry that proxies calls through to
// tools exposed by an external MCP server over stdio, for tool
// implementations this deployment does not carry in-process. Connection is
// lazy: the subprocess is started and initialized on the first call, then
// reused for the life of the process.
type MCPProxy struct {
	name        string
	command     string
	args        []string
	description string

	mu     sync.Mutex
	client *client.Client
}

// NewMCPProxy builds an mcp_proxy tool named registryName that launches
// command/args as a stdio MCP server on first use.
func NewMCPProxy(registryName, command string, args []string) *MCPProxy {
	return &MCPProxy{
		name:        registryName,
		command:     command,
		args:        args,
		description: fmt.Sprintf("Invoke a tool exposed by the %q MCP server.", registryName),
	}
}

func (t *MCPProxy) Name() string          { return t.name }
func (t *MCPProxy) Description() string   { return t.description }
func (t *MCPProxy) ArgsType() any          { return &MCPProxyArgs{} }
func (t *MCPProxy) RequiredArgs() []string { return []string{"tool_name"} }

// connect starts the subprocess and performs the MCP initialize handshake,
// memoizing the client for subsequent calls.
func (t *MCPProxy) connect(ctx context.Context) (*client.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	c, err := client.NewStdioMCPClient(t.command, nil, t.args...)
	if err != nil {
		return nil, fmt.Errorf("mcp_proxy %s: starting server: %w", t.name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp_proxy %s: starting transport: %w", t.name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "kbagents-orchestrator", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp_proxy %s: initialize: %w", t.name, err)
	}

	t.client = c
	return c, nil
}

func (t *MCPProxy) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	toolName, _ := args["tool_name"].(string)
	if toolName == "" {
		return types.ToolResult{Success: false, Error: "tool_name is required"}, nil
	}
	arguments, _ := args["arguments"].(map[string]any)

	c, err := t.connect(ctx)
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("mcp call failed: %v", err)}, nil
	}
	return parseMCPResult(toolName, resp), nil
}

// parseMCPResult collects the text content blocks of an MCP tool response
// into the Output/Error shape Tool Registry callers expect.
func parseMCPResult(toolName string, resp *mcp.CallToolResult) types.ToolResult {
	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	output := ""
	if len(texts) > 0 {
		output = texts[0]
		for _, extra := range texts[1:] {
			output += "\n" + extra
		}
	}
	if resp.IsError {
		errMsg := output
		if errMsg == "" {
			errMsg = "unknown MCP error"
		}
		return types.ToolResult{Success: false, Error: errMsg, Metadata: map[string]any{"mcp_tool": toolName}}
	}
	return types.ToolResult{Success: true, Output: output, Metadata: map[string]any{"mcp_tool": toolName}}
}

// Close shuts down the MCP subprocess, if one was started.
func (t *MCPProxy) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
