package agentloop

import (
	"time"

	"github.com/google/uuid"

	"github.com/olanigan/small-giants/localllm"
)

// TraceEntry records one model round: what was asked, what the model
// called, and what came back. FinalText is set on rounds that produced a
// text answer instead of tool calls.
type TraceEntry struct {
	TurnIndex      int                        `json:"turn_index"`
	Timestamp      time.Time                  `json:"timestamp"`
	RequestSummary string                     `json:"request_summary"`
	ToolCalls      []localllm.ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult               `json:"tool_results,omitempty"`
	FinalText      *string                    `json:"final_text,omitempty"`
}

// ExecutionTrace is the ordered per-round record of a run.
type ExecutionTrace struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	Entries   []TraceEntry `json:"entries"`
}

// NewExecutionTrace creates an empty trace with a fresh run ID.
func NewExecutionTrace() *ExecutionTrace {
	return &ExecutionTrace{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// Add appends an entry to the trace.
func (t *ExecutionTrace) Add(entry TraceEntry) {
	entry.Timestamp = time.Now()
	t.Entries = append(t.Entries, entry)
}

// Rounds returns the number of recorded model rounds.
func (t *ExecutionTrace) Rounds() int { return len(t.Entries) }
