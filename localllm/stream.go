package localllm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// streamDelta is the wire form of one server-sent event payload.
type streamDelta struct {
	Type           string `json:"type"`
	Delta          string `json:"delta,omitempty"`
	CallID         string `json:"call_id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// consumeStream reads server-sent events from body and assembles them
// into a ModelResponse. The stream is only restartable from scratch: a
// malformed event or a connection drop before the terminal [DONE] marker
// fails the whole exchange as a ProtocolError, since deltas may already
// have been handed to onDelta.
func consumeStream(ctx context.Context, body io.Reader, onDelta func(StreamEvent)) (*ModelResponse, error) {
	var (
		text    strings.Builder
		calls   []ToolCallRequest
		callIdx = make(map[string]int)
		argBufs = make(map[string]*strings.Builder)
		done    bool
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Ignore other SSE fields (event:, id:).
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			done = true
			break
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			return nil, &ProtocolError{ClientError{Message: "malformed stream event", Cause: err}}
		}

		switch delta.Type {
		case "message":
			text.WriteString(delta.Delta)
			emit(onDelta, StreamEvent{Type: StreamTextDelta, TextDelta: delta.Delta})
		case "function_call":
			if delta.CallID == "" {
				return nil, &ProtocolError{ClientError{Message: "function_call delta without call_id"}}
			}
			idx, seen := callIdx[delta.CallID]
			if !seen {
				idx = len(calls)
				callIdx[delta.CallID] = idx
				calls = append(calls, ToolCallRequest{CallID: delta.CallID})
				argBufs[delta.CallID] = &strings.Builder{}
			}
			// Tolerate backends that omit the name on some fragments.
			if calls[idx].ToolName == "" {
				calls[idx].ToolName = delta.Name
			}
			argBufs[delta.CallID].WriteString(delta.ArgumentsDelta)
			emit(onDelta, StreamEvent{
				Type:           StreamToolCallDelta,
				CallID:         delta.CallID,
				ToolName:       delta.Name,
				ArgumentsDelta: delta.ArgumentsDelta,
			})
		default:
			return nil, &ProtocolError{ClientError{Message: "stream event has unknown type " + delta.Type}}
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, wrapTransportError(ctx, "stream interrupted", err)
		}
		return nil, &ProtocolError{ClientError{Message: "stream interrupted", Cause: err}}
	}
	if !done {
		return nil, &ProtocolError{ClientError{Message: "stream ended without [DONE]"}}
	}

	for i := range calls {
		calls[i].RawArguments = argBufs[calls[i].CallID].String()
	}
	emit(onDelta, StreamEvent{Type: StreamDone})

	return &ModelResponse{Text: text.String(), ToolCalls: calls}, nil
}

func emit(onDelta func(StreamEvent), ev StreamEvent) {
	if onDelta != nil {
		onDelta(ev)
	}
}
