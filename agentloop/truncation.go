package agentloop

import "fmt"

// TruncationMode specifies how oversized tool output is cut down.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Character limits per core tool before output is folded into the
// conversation. Anything over the limit gets replaced by a marker noting
// how much was removed.
var defaultToolCharLimits = map[string]int{
	"read_file":    50000,
	"search_files": 20000,
	"list_dir":     20000,
	"write_file":   1000,
}

var defaultTruncationModes = map[string]TruncationMode{
	"read_file":    TruncateHeadTail,
	"search_files": TruncateTail,
	"list_dir":     TruncateTail,
	"write_file":   TruncateTail,
}

const fallbackCharLimit = 30000

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[output truncated: first %d characters removed. "+
			"Re-run the tool with more targeted parameters to see them.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[output truncated: %d characters removed from the middle. "+
				"Re-run the tool with more targeted parameters to see them.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateToolOutput applies the per-tool limit and mode for toolName,
// ensuring one runaway result cannot flood the conversation.
func TruncateToolOutput(output, toolName string) string {
	maxChars, ok := defaultToolCharLimits[toolName]
	if !ok {
		maxChars = fallbackCharLimit
	}
	mode, ok := defaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	return TruncateOutput(output, maxChars, mode)
}
