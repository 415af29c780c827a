package agentloop

import "fmt"

// Mode selects which of the three mutually exclusive execution
// strategies fulfills a Task.
type Mode string

const (
	// ModeDirect issues a single no-tools generate call.
	ModeDirect Mode = "direct"
	// ModeReflective runs iterative self-refinement over the task text
	// alone, with no tool access. It cannot acquire external content;
	// callers must not use it for tasks that require reading files.
	ModeReflective Mode = "reflective"
	// ModeToolAugmented runs the sandboxed tool-calling loop.
	ModeToolAugmented Mode = "tools"
)

// ParseMode converts a user-facing mode string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "direct":
		return ModeDirect, nil
	case "reflective":
		return ModeReflective, nil
	case "tools", "toolAugmented", "tool-augmented":
		return ModeToolAugmented, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want direct, reflective, or tools)", s)
	}
}

// Task is the immutable input record for one engine invocation.
type Task struct {
	Instruction string `json:"instruction"`
	WorkingDir  string `json:"working_dir"`
	Mode        Mode   `json:"mode"`
	MaxTurns    int    `json:"max_turns"`
}

// Validate checks the task invariants before execution.
func (t Task) Validate() error {
	if t.Instruction == "" {
		return fmt.Errorf("task instruction is empty")
	}
	if t.MaxTurns < 1 {
		return fmt.Errorf("max turns must be at least 1, got %d", t.MaxTurns)
	}
	switch t.Mode {
	case ModeDirect, ModeReflective, ModeToolAugmented:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", t.Mode)
	}
}
