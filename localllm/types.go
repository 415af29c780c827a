package localllm

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a tool invocation parsed from a model response.
// RawArguments is the JSON-encoded argument payload exactly as the
// backend produced it; parsing and validation happen at the registry.
type ToolCallRequest struct {
	CallID       string `json:"call_id"`
	ToolName     string `json:"tool_name"`
	RawArguments string `json:"raw_arguments"`
}

// Message is one unit of conversation sent to the backend.
//
// Assistant messages that previously requested tools carry those requests
// in ToolCalls so the backend sees its own prior function_call items.
// Tool messages carry the call they answer in CallID and the result text
// in Content.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message, optionally carrying the
// tool calls the assistant issued alongside its narration.
func AssistantMessage(text string, calls []ToolCallRequest) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResultMessage creates a tool Message answering callID.
func ToolResultMessage(callID, output string, isError bool) Message {
	return Message{Role: RoleTool, Content: output, CallID: callID, IsError: isError}
}

// ToolDefinition describes a callable tool to the backend.
// Parameters is a JSON-Schema-shaped object description.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ModelResponse is the normalized result of one generate exchange. A
// response may carry narration text, tool call requests, or both; a
// response with neither is valid and means the model had nothing to add.
type ModelResponse struct {
	ID        string            `json:"id"`
	Model     string            `json:"model,omitempty"`
	Text      string            `json:"text"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *ModelResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// StreamEventType identifies the kind of streaming delta.
type StreamEventType string

const (
	StreamTextDelta     StreamEventType = "text_delta"
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	StreamDone          StreamEventType = "done"
)

// StreamEvent is one incremental delta from a streaming response.
// Text deltas carry a narration fragment in TextDelta; tool call deltas
// carry the call identity plus an arguments fragment.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	TextDelta      string          `json:"text_delta,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ArgumentsDelta string          `json:"arguments_delta,omitempty"`
}

// GenerateRequest is the input to Client.Generate.
type GenerateRequest struct {
	// System holds the system instructions prepended to the conversation.
	System string
	// Conversation is the ordered history, oldest first.
	Conversation []Message
	// Tools lists tool definitions the model may invoke. Empty means the
	// request is issued without a tools block.
	Tools []ToolDefinition
	// Stream selects server-sent-event consumption. The assembled
	// ModelResponse is identical either way.
	Stream bool
	// OnDelta, if set during a streaming request, observes each delta as
	// it arrives. It is called from the Generate goroutine, in order.
	OnDelta func(StreamEvent)
}
