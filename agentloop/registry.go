package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/olanigan/small-giants/localllm"
)

// ParamType enumerates the argument types tools may declare.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec declares one named tool parameter. Parameters flagged IsPath
// are resolved through the sandbox before execution; their value reaches
// the executor as a canonical absolute path.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	IsPath      bool
}

// ToolFunc executes a tool against validated arguments. Path arguments
// have already been sandbox-resolved.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolSpec pairs a tool's catalog entry with its execution function.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
	Execute     ToolFunc
}

// ToolResult is the outcome of one tool invocation. The registry always
// produces one, folding every pipeline failure into Success=false with a
// model-readable description in Output.
type ToolResult struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Output   string `json:"output"`
	Success  bool   `json:"success"`
}

// Registry is the immutable-after-construction tool catalog. Specs are
// validated exhaustively at registration time so invocation can dispatch
// by name without conditional fallbacks.
type Registry struct {
	sandbox *Sandbox
	tools   map[string]ToolSpec
	order   []string
}

// NewRegistry creates an empty registry whose path parameters resolve
// through sandbox.
func NewRegistry(sandbox *Sandbox) *Registry {
	return &Registry{
		sandbox: sandbox,
		tools:   make(map[string]ToolSpec),
	}
}

// Sandbox returns the sandbox backing this registry.
func (r *Registry) Sandbox() *Sandbox { return r.sandbox }

// Register adds a tool to the catalog. Duplicate names fail with
// ErrDuplicateTool; structural defects in the spec fail immediately
// rather than at call time.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool spec has no name")
	}
	if spec.Execute == nil {
		return fmt.Errorf("tool %s has no execution function", spec.Name)
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%s: %w", spec.Name, ErrDuplicateTool)
	}
	seen := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		if p.Name == "" {
			return fmt.Errorf("tool %s declares an unnamed parameter", spec.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s declares parameter %s twice", spec.Name, p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case ParamString, ParamInteger, ParamBoolean:
		default:
			return fmt.Errorf("tool %s parameter %s has unknown type %q", spec.Name, p.Name, p.Type)
		}
		if p.IsPath && p.Type != ParamString {
			return fmt.Errorf("tool %s parameter %s: path parameters must be strings", spec.Name, p.Name)
		}
	}
	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	spec, ok := r.tools[name]
	return spec, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions returns the catalog in the backend's tool definition form,
// in registration order.
func (r *Registry) Definitions() []localllm.ToolDefinition {
	defs := make([]localllm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		spec := r.tools[name]
		defs = append(defs, localllm.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.parameterSchema(),
		})
	}
	return defs
}

// parameterSchema renders the param specs as a JSON-Schema-shaped object.
func (s ToolSpec) parameterSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Params))
	var required []string
	for _, p := range s.Params {
		properties[p.Name] = map[string]interface{}{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Invoke runs the full invocation pipeline for a model-requested call:
// lookup, argument parsing, schema validation, sandbox resolution of
// path parameters, then execution. Every failure along the way becomes a
// failed ToolResult whose output describes the problem to the model; the
// loop never receives an unhandled fault from here.
func (r *Registry) Invoke(ctx context.Context, call localllm.ToolCallRequest) ToolResult {
	spec, ok := r.tools[call.ToolName]
	if !ok {
		return failedResult(call, &UnknownToolError{Name: call.ToolName})
	}

	args, err := parseArguments(spec.Name, call.RawArguments)
	if err != nil {
		return failedResult(call, err)
	}

	if err := spec.validateArguments(args); err != nil {
		return failedResult(call, err)
	}

	for _, p := range spec.Params {
		if !p.IsPath {
			continue
		}
		raw, present := args[p.Name]
		if !present {
			continue
		}
		resolved, err := r.sandbox.Resolve(raw.(string))
		if err != nil {
			return failedResult(call, err)
		}
		args[p.Name] = resolved
	}

	output, err := execute(ctx, spec, args)
	if err != nil {
		return failedResult(call, &ToolExecutionError{Tool: spec.Name, Cause: err})
	}
	return ToolResult{CallID: call.CallID, ToolName: call.ToolName, Output: output, Success: true}
}

// execute calls the tool function, converting a panic into an error so a
// misbehaving tool cannot take down the loop.
func execute(ctx context.Context, spec ToolSpec, args map[string]interface{}) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return spec.Execute(ctx, args)
}

func parseArguments(tool, raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &MalformedArgumentsError{Tool: tool, Cause: err}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

func (s ToolSpec) validateArguments(args map[string]interface{}) error {
	var problems []string
	for _, p := range s.Params {
		value, present := args[p.Name]
		if !present {
			if p.Required {
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
			}
			continue
		}
		switch p.Type {
		case ParamString:
			if _, ok := value.(string); !ok {
				problems = append(problems, fmt.Sprintf("parameter %q must be a string", p.Name))
			}
		case ParamInteger:
			n, ok := value.(float64)
			if !ok || n != math.Trunc(n) {
				problems = append(problems, fmt.Sprintf("parameter %q must be an integer", p.Name))
			}
		case ParamBoolean:
			if _, ok := value.(bool); !ok {
				problems = append(problems, fmt.Sprintf("parameter %q must be a boolean", p.Name))
			}
		}
	}
	if len(problems) > 0 {
		return &InvalidArgumentsError{Tool: s.Name, Problems: problems}
	}
	return nil
}

func failedResult(call localllm.ToolCallRequest, err error) ToolResult {
	return ToolResult{
		CallID:   call.CallID,
		ToolName: call.ToolName,
		Output:   err.Error(),
		Success:  false,
	}
}
