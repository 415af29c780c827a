package agentloop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/olanigan/small-giants/localllm"
)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tool name already registered")

// SandboxViolationError reports a path that escapes the sandbox root.
// It carries the offending path as given; the sandbox never clamps or
// rewrites a path to make it fit.
type SandboxViolationError struct {
	Path string
}

func (e *SandboxViolationError) Error() string {
	return fmt.Sprintf("sandbox violation: path %q escapes the sandbox root", e.Path)
}

// UnknownToolError reports an invocation of a name absent from the
// registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// MalformedArgumentsError reports an argument payload that is not a
// valid JSON object.
type MalformedArgumentsError struct {
	Tool  string
	Cause error
}

func (e *MalformedArgumentsError) Error() string {
	return fmt.Sprintf("malformed arguments for %s: %v", e.Tool, e.Cause)
}

func (e *MalformedArgumentsError) Unwrap() error { return e.Cause }

// InvalidArgumentsError reports missing or mistyped parameters against a
// tool's parameter schema.
type InvalidArgumentsError struct {
	Tool     string
	Problems []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// ToolExecutionError wraps a failure raised by a tool's execution
// function. The registry converts it into a failed ToolResult; it never
// escapes to the loop as an error.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// TurnLimitError terminates a tool-augmented run that reached its turn
// budget without a final text-only response.
type TurnLimitError struct {
	MaxTurns int
}

func (e *TurnLimitError) Error() string {
	return fmt.Sprintf("turn limit exceeded after %d tool rounds", e.MaxTurns)
}

// FailureCategory names the taxonomy entry for a terminal run error.
// Backend faults delegate to the localllm taxonomy.
func FailureCategory(err error) string {
	if err == nil {
		return ""
	}
	var limit *TurnLimitError
	if errors.As(err, &limit) {
		return "TurnLimitExceeded"
	}
	return localllm.Category(err)
}
