package localllm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Wire document types for the local backend contract. A request carries
// an "input" item list; a response carries an "output" item list whose
// entries are tagged "message" or "function_call".

type wireRequest struct {
	Model  string     `json:"model"`
	Input  []wireItem `json:"input"`
	Tools  []wireTool `json:"tools,omitempty"`
	Stream bool       `json:"stream,omitempty"`
}

type wireTool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// wireItem is a single input or output item. Which fields are populated
// depends on Type: "message" items use Role/Content, "function_call"
// items use CallID/Name/Arguments, and "function_call_output" items use
// CallID/Output.
type wireItem struct {
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Content   []wireContent `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireResponse struct {
	ID     string            `json:"id"`
	Model  string            `json:"model"`
	Output []json.RawMessage `json:"output"`
}

// buildInput flattens the system instructions and conversation history
// into the wire item list. Assistant turns that issued tool calls are
// replayed as a message item followed by their function_call items, and
// tool turns become function_call_output items, so the backend sees the
// full causal record of prior rounds.
func buildInput(system string, conversation []Message) []wireItem {
	var items []wireItem
	if system != "" {
		items = append(items, messageItem(string(RoleSystem), system))
	}
	for _, msg := range conversation {
		switch msg.Role {
		case RoleTool:
			items = append(items, wireItem{
				Type:   "function_call_output",
				CallID: msg.CallID,
				Output: msg.Content,
			})
		case RoleAssistant:
			if msg.Content != "" {
				items = append(items, messageItem(string(RoleAssistant), msg.Content))
			}
			for _, call := range msg.ToolCalls {
				items = append(items, wireItem{
					Type:      "function_call",
					CallID:    call.CallID,
					Name:      call.ToolName,
					Arguments: call.RawArguments,
				})
			}
		default:
			items = append(items, messageItem(string(msg.Role), msg.Content))
		}
	}
	return items
}

func messageItem(role, text string) wireItem {
	return wireItem{
		Type:    "message",
		Role:    role,
		Content: []wireContent{{Type: "output_text", Text: text}},
	}
}

func buildTools(defs []ToolDefinition) []wireTool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]wireTool, len(defs))
	for i, def := range defs {
		tools[i] = wireTool{
			Type:        "function",
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		}
	}
	return tools
}

// normalizeResponse converts a full response document into a
// ModelResponse. Unknown or malformed output items fail the whole
// exchange; the loop must never act on a partially understood response.
func normalizeResponse(doc *wireResponse) (*ModelResponse, error) {
	resp := &ModelResponse{ID: doc.ID, Model: doc.Model}
	var text strings.Builder

	for i, raw := range doc.Output {
		var item wireItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, &ProtocolError{ClientError{
				Message: fmt.Sprintf("output item %d is not an object", i),
				Cause:   err,
			}}
		}
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				text.WriteString(part.Text)
			}
		case "function_call":
			if item.Name == "" {
				return nil, &ProtocolError{ClientError{
					Message: fmt.Sprintf("output item %d: function_call without a name", i),
				}}
			}
			callID := item.CallID
			if callID == "" {
				// The loop correlates results by call ID, so synthesize one
				// when the backend omits it.
				callID = "call_" + uuid.NewString()
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCallRequest{
				CallID:       callID,
				ToolName:     item.Name,
				RawArguments: item.Arguments,
			})
		default:
			return nil, &ProtocolError{ClientError{
				Message: fmt.Sprintf("output item %d has unknown type %q", i, item.Type),
			}}
		}
	}

	resp.Text = text.String()
	return resp, nil
}
