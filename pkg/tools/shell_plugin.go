package tools

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// shellHandshake is the go-plugin handshake both the host and the
// out-of-process executor must agree on before a connection is trusted.
var shellHandshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SHELL_TOOL_PLUGIN",
	MagicCookieValue: "kbagents-orchestrator",
}

// ShellExecRequest is the wire shape of one out-of-process command
// execution, passed across the net/rpc boundary.
type ShellExecRequest struct {
	Command    string
	WorkingDir string
}

// ShellExecResponse is the executor's reply.
type ShellExecResponse struct {
	Output   string
	ExitCode int
	Err      string
}

// ShellExecutor is the interface a plugin binary implements and the host
// calls across the RPC boundary. The shell plugin binary's main() registers
// a concrete ShellExecutor with plugin.Serve; this module only needs the
// host side.
type ShellExecutor interface {
	Execute(req ShellExecRequest) (ShellExecResponse, error)
}

// shellRPCClient is the host-side RPC stub satisfying ShellExecutor.
type shellRPCClient struct{ client *rpc.Client }

func (c *shellRPCClient) Execute(req ShellExecRequest) (ShellExecResponse, error) {
	var resp ShellExecResponse
	if err := c.client.Call("Plugin.Execute", req, &resp); err != nil {
		return ShellExecResponse{}, err
	}
	return resp, nil
}

// ShellPlugin is the go-plugin Plugin implementation for the shell
// executor family, used only to obtain the client-side dispense; this
// module never runs the server side.
type ShellPlugin struct{}

func (p *ShellPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return nil, fmt.Errorf("tools: this binary does not serve the shell plugin")
}

func (p *ShellPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &shellRPCClient{client: c}, nil
}

// PluginShell is a Tool Registry "shell" implementation that dispatches
// command execution to an out-of-process binary over go-plugin's net/rpc
// transport, so a deployment can swap in a sandboxed executor (gVisor,
// firecracker, a restricted container) without relinking the orchestrator
// binary. Deny-list enforcement still runs host-side before the RPC call,
// as a second layer behind whatever the plugin itself enforces.
type PluginShell struct {
	deny   *Shell
	path   string
	logger hclog.Logger

	client    *plugin.Client
	executor  ShellExecutor
}

// NewPluginShell launches path as a go-plugin subprocess on first use.
// denyCfg supplies the same deny-list the in-process Shell tool applies.
func NewPluginShell(path string, denyCfg ShellConfig) *PluginShell {
	return &PluginShell{
		deny: NewShell(denyCfg),
		path: path,
		logger: hclog.New(&hclog.LoggerOptions{
			Name:  "shell-plugin",
			Level: hclog.Warn,
		}),
	}
}

func (t *PluginShell) Name() string          { return "shell" }
func (t *PluginShell) Description() string   { return "Execute a shell command via an out-of-process plugin executor." }
func (t *PluginShell) ArgsType() any          { return &ShellArgs{} }
func (t *PluginShell) RequiredArgs() []string { return []string{"command"} }

func (t *PluginShell) connect() (ShellExecutor, error) {
	if t.executor != nil {
		return t.executor, nil
	}
	t.client = plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: shellHandshake,
		Plugins:         map[string]plugin.Plugin{"shell": &ShellPlugin{}},
		Cmd:             exec.Command(t.path),
		Logger:          t.logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})
	rpcClient, err := t.client.Client()
	if err != nil {
		t.client.Kill()
		return nil, fmt.Errorf("shell plugin: dialing %s: %w", t.path, err)
	}
	raw, err := rpcClient.Dispense("shell")
	if err != nil {
		t.client.Kill()
		return nil, fmt.Errorf("shell plugin: dispense: %w", err)
	}
	executor, ok := raw.(ShellExecutor)
	if !ok {
		t.client.Kill()
		return nil, fmt.Errorf("shell plugin: %s does not implement ShellExecutor", t.path)
	}
	t.executor = executor
	return executor, nil
}

func (t *PluginShell) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	command, _ := args["command"].(string)
	if err := t.deny.validate(command); err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	workDir, _ := args["working_dir"].(string)

	executor, err := t.connect()
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}

	resp, err := executor.Execute(ShellExecRequest{Command: command, WorkingDir: workDir})
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("plugin call failed: %v", err)}, nil
	}

	result := types.ToolResult{
		Success: resp.Err == "",
		Output:  resp.Output,
		Error:   resp.Err,
		Metadata: map[string]any{
			"command":     command,
			"working_dir": workDir,
			"exit_code":   resp.ExitCode,
			"plugin_path": t.path,
		},
	}
	return result, nil
}

// Close kills the plugin subprocess, if one was started.
func (t *PluginShell) Close() {
	if t.client != nil {
		t.client.Kill()
	}
}
