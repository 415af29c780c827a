package localllm

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func streamHandler(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}
}

func TestStreamAssemblesText(t *testing.T) {
	client, _ := newTestClient(t, streamHandler([]string{
		`{"type":"message","delta":"Hel"}`,
		`{"type":"message","delta":"lo"}`,
		`[DONE]`,
	}))

	var deltas []string
	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
		Stream:       true,
		OnDelta: func(ev StreamEvent) {
			if ev.Type == StreamTextDelta {
				deltas = append(deltas, ev.TextDelta)
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello" {
		t.Errorf("expected assembled text Hello, got %q", resp.Text)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas not observed in order: %v", deltas)
	}
}

func TestStreamAssemblesToolCalls(t *testing.T) {
	client, _ := newTestClient(t, streamHandler([]string{
		`{"type":"message","delta":"Checking."}`,
		`{"type":"function_call","call_id":"call_9","name":"read_file","arguments_delta":"{\"path\":"}`,
		`{"type":"function_call","call_id":"call_9","name":"read_file","arguments_delta":"\"a.txt\"}"}`,
		`[DONE]`,
	}))

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("read a.txt")},
		Stream:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Checking." {
		t.Errorf("unexpected partial text %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 accumulated tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.CallID != "call_9" || call.ToolName != "read_file" || call.RawArguments != `{"path":"a.txt"}` {
		t.Errorf("tool call not accumulated: %+v", call)
	}
}

// The streamed and non-streamed forms of the same logical response must
// normalize identically.
func TestStreamMatchesNonStreaming(t *testing.T) {
	streamed, _ := newTestClient(t, streamHandler([]string{
		`{"type":"message","delta":"The answer is 4."}`,
		`{"type":"function_call","call_id":"c1","name":"write_file","arguments_delta":"{}"}`,
		`[DONE]`,
	}))
	plain, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"r","output":[
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"The answer is 4."}]},
			{"type":"function_call","call_id":"c1","name":"write_file","arguments":"{}"}
		]}`)
	})

	conv := []Message{UserMessage("2+2 then save it")}
	a, err := streamed.Generate(context.Background(), GenerateRequest{Conversation: conv, Stream: true})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	b, err := plain.Generate(context.Background(), GenerateRequest{Conversation: conv})
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	if a.Text != b.Text {
		t.Errorf("text mismatch: %q vs %q", a.Text, b.Text)
	}
	if len(a.ToolCalls) != len(b.ToolCalls) || a.ToolCalls[0] != b.ToolCalls[0] {
		t.Errorf("tool call mismatch: %+v vs %+v", a.ToolCalls, b.ToolCalls)
	}
}

func TestStreamProtocolErrors(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
	}{
		{"malformed event", []string{`not json`, `[DONE]`}},
		{"unknown type", []string{`{"type":"surprise"}`, `[DONE]`}},
		{"missing call_id", []string{`{"type":"function_call","name":"x","arguments_delta":"{}"}`, `[DONE]`}},
		{"truncated stream", []string{`{"type":"message","delta":"partial"}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, streamHandler(tc.lines))
			_, err := client.Generate(context.Background(), GenerateRequest{
				Conversation: []Message{UserMessage("hi")},
				Stream:       true,
			})
			if Category(err) != "BackendProtocolError" {
				t.Errorf("expected BackendProtocolError, got %v", err)
			}
		})
	}
}

// A connection that drops after deltas were already consumed cannot be
// transparently retried; it must classify as a protocol fault.
func TestStreamDropMidStreamIsProtocolError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"message\",\"delta\":\"partial\"}\n\n")
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		conn.Close()
	})

	_, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
		Stream:       true,
	})
	if Category(err) != "BackendProtocolError" {
		t.Fatalf("expected BackendProtocolError, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("half-consumed stream reported as retryable")
	}
}

func TestStreamBackfillsToolName(t *testing.T) {
	client, _ := newTestClient(t, streamHandler([]string{
		`{"type":"function_call","call_id":"call_3","arguments_delta":"{\"path\":"}`,
		`{"type":"function_call","call_id":"call_3","name":"read_file","arguments_delta":"\"a.txt\"}"}`,
		`[DONE]`,
	}))

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("read a.txt")},
		Stream:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ToolName != "read_file" {
		t.Errorf("name not backfilled from later fragment: %+v", call)
	}
	if call.RawArguments != `{"path":"a.txt"}` {
		t.Errorf("arguments not accumulated: %q", call.RawArguments)
	}
}

func TestStreamIgnoresComments(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: delta\n")
		fmt.Fprint(w, "data: {\"type\":\"message\",\"delta\":\"ok\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
		Stream:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("expected ok, got %q", resp.Text)
	}
}
