package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// DefaultDeniedCommands blocks destructive base commands regardless of the
// Permission Manager's own Code-agent rules.
var DefaultDeniedCommands = []string{
	"rm", "rmdir", "sudo", "su", "chmod", "chown",
	"dd", "mkfs", "fdisk", "mount", "umount",
	"kill", "killall", "pkill", "reboot", "shutdown",
	"passwd", "useradd", "userdel", "groupadd",
}

// DefaultDeniedPatterns blocks dangerous shell constructs by regex.
var DefaultDeniedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-rf|-fr|--recursive)`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`),
	regexp.MustCompile(`wget.*\|\s*sh`),
	regexp.MustCompile(`curl.*\|\s*sh`),
	regexp.MustCompile(`eval\s*\$`),
	regexp.MustCompile(`\$\(.*\)\s*>\s*/`),
	regexp.MustCompile(`>\s*/etc/`),
	regexp.MustCompile(`chmod\s+777`),
	regexp.MustCompile(`--no-preserve-root`),
}

// ShellArgs are the LLM-facing parameters for shell.
type ShellArgs struct {
	Command    string `json:"command" jsonschema:"required,description=The shell command to execute"`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"description=Optional working directory"`
}

// ShellConfig carries the deny-list and execution bounds for the shell tool.
type ShellConfig struct {
	DeniedCommands []string // defaults to DefaultDeniedCommands
	DeniedPatterns []*regexp.Regexp // defaults to DefaultDeniedPatterns
	WorkingDir     string
	Timeout        time.Duration
}

// Shell runs a command through /bin/sh with a deny-list applied first. This
// is a second enforcement layer behind the Permission Manager's own
// Code-agent glob rules, not a replacement for them.
type Shell struct {
	deniedCommands map[string]bool
	deniedPatterns []*regexp.Regexp
	workingDir     string
	timeout        time.Duration
}

func NewShell(cfg ShellConfig) *Shell {
	denyList := cfg.DeniedCommands
	if denyList == nil {
		denyList = DefaultDeniedCommands
	}
	denied := make(map[string]bool, len(denyList))
	for _, c := range denyList {
		denied[c] = true
	}
	patterns := cfg.DeniedPatterns
	if patterns == nil {
		patterns = DefaultDeniedPatterns
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Shell{deniedCommands: denied, deniedPatterns: patterns, workingDir: cfg.WorkingDir, timeout: timeout}
}

func (t *Shell) Name() string          { return "shell" }
func (t *Shell) Description() string   { return "Execute a shell command and return its output." }
func (t *Shell) ArgsType() any          { return &ShellArgs{} }
func (t *Shell) RequiredArgs() []string { return []string{"command"} }

func (t *Shell) validate(command string) error {
	if command == "" {
		return fmt.Errorf("command is required")
	}
	for _, pattern := range t.deniedPatterns {
		if pattern.MatchString(command) {
			return fmt.Errorf("command matches denied pattern: %s", pattern.String())
		}
	}
	base := extractBaseCommand(command)
	if t.deniedCommands[base] {
		return fmt.Errorf("command not allowed: %s (in deny list)", base)
	}
	return nil
}

func extractBaseCommand(command string) string {
	parts := strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == '>' || r == '<' || r == ';' || r == '&'
	})
	if len(parts) == 0 {
		return ""
	}
	fields := strings.Fields(strings.TrimSpace(parts[0]))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (t *Shell) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	command, _ := args["command"].(string)
	if err := t.validate(command); err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	workDir := t.workingDir
	if v, ok := args["working_dir"].(string); ok && v != "" {
		workDir = v
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n[stderr]\n" + stderr.String()
	}

	result := types.ToolResult{
		Success: runErr == nil,
		Output:  output,
		Metadata: map[string]any{
			"command":     command,
			"working_dir": workDir,
			"exit_code":   exitCode,
		},
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result, nil
}

// ExecuteStreaming reports each output line as it arrives via onProgress,
// same shape as the non-streaming result once the command exits.
func (t *Shell) ExecuteStreaming(ctx context.Context, agentCtx *types.AgentContext, args map[string]any, onProgress func(chunk string)) (types.ToolResult, error) {
	command, _ := args["command"].(string)
	if err := t.validate(command); err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	workDir := t.workingDir
	if v, ok := args["working_dir"].(string); ok && v != "" {
		workDir = v
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if err := cmd.Start(); err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}

	var accumulated strings.Builder
	var wg sync.WaitGroup
	var mu sync.Mutex

	stream := func(scanner *bufio.Scanner, prefix string) {
		defer wg.Done()
		for scanner.Scan() {
			line := prefix + scanner.Text() + "\n"
			mu.Lock()
			accumulated.WriteString(line)
			mu.Unlock()
			onProgress(line)
		}
	}

	wg.Add(2)
	go stream(bufio.NewScanner(stdout), "")
	go stream(bufio.NewScanner(stderr), "[stderr] ")
	wg.Wait()

	runErr := cmd.Wait()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	result := types.ToolResult{
		Success: runErr == nil,
		Output:  accumulated.String(),
		Metadata: map[string]any{
			"command":     command,
			"working_dir": workDir,
			"exit_code":   exitCode,
		},
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result, nil
}
