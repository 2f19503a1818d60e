// Package toolregistry holds the process-wide catalog of named, schema-
// checked tools an agent may invoke during its Reason-Act loop, and the
// per-agent-kind default tool assignments (SPEC_FULL.md §4.1).
package toolregistry

import (
	"context"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// ErrUnknownTool is returned by Invoke when no tool is registered under the
// requested name.
var ErrUnknownTool = errors.New("toolregistry: unknown tool")

// InvalidArgumentsError names the offending field when a tool call's
// arguments fail validation against the tool's schema.
type InvalidArgumentsError struct {
	Tool  string
	Field string
	Msg   string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: field %q: %s", e.Tool, e.Field, e.Msg)
}

// Tool is a named, schema-checked operation an agent may invoke.
//
// ArgsType returns a fresh pointer to the zero value of the tool's argument
// struct; it is used both to derive a JSON schema (via invopop/jsonschema)
// and as the decode target for a given call's raw arguments.
type Tool interface {
	Name() string
	Description() string
	ArgsType() any
	RequiredArgs() []string
	Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error)
}

// StreamingTool is implemented by tools that can report incremental
// progress; the Agent Executor's streaming variant uses this when present,
// falling back to Execute otherwise.
type StreamingTool interface {
	Tool
	ExecuteStreaming(ctx context.Context, agentCtx *types.AgentContext, args map[string]any, onProgress func(chunk string)) (types.ToolResult, error)
}

// Definition is the LLM-facing shape of a tool, used for function-calling
// tool schemas.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Required    []string           `json:"required"`
}

// ToDefinition derives a Definition from a Tool via reflection over its
// ArgsType.
func ToDefinition(t Tool) Definition {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(t.ArgsType())
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  schema,
		Required:    t.RequiredArgs(),
	}
}

// decodeArgs validates presence of required fields, then decodes the raw
// argument map into a fresh instance of t's ArgsType, surfacing any type
// mismatch as an InvalidArgumentsError naming the offending field.
func decodeArgs(t Tool, args map[string]any) (any, error) {
	for _, field := range t.RequiredArgs() {
		if _, ok := args[field]; !ok {
			return nil, &InvalidArgumentsError{Tool: t.Name(), Field: field, Msg: "missing required field"}
		}
	}

	target := t.ArgsType()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return nil, fmt.Errorf("toolregistry: building decoder for %q: %w", t.Name(), err)
	}
	if err := decoder.Decode(args); err != nil {
		return nil, &InvalidArgumentsError{Tool: t.Name(), Field: "?", Msg: err.Error()}
	}
	return target, nil
}
