package localllm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-model", 5*time.Second), server
}

func TestGenerateTextOnly(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if len(req.Input) != 2 {
			t.Errorf("expected 2 input items (system + user), got %d", len(req.Input))
		}
		fmt.Fprint(w, `{"id":"resp_1","model":"test-model","output":[
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Hello "},{"type":"output_text","text":"world"}]}
		]}`)
	})

	resp, err := client.Generate(context.Background(), GenerateRequest{
		System:       "You are helpful.",
		Conversation: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", resp.Text)
	}
	if resp.HasToolCalls() {
		t.Errorf("expected no tool calls, got %d", len(resp.ToolCalls))
	}
}

func TestGenerateWithToolCalls(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"resp_2","output":[
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Reading the file."}]},
			{"type":"function_call","call_id":"call_1","name":"read_file","arguments":"{\"path\":\"a.txt\"}"},
			{"type":"function_call","call_id":"call_2","name":"list_dir","arguments":"{\"path\":\".\"}"}
		]}`)
	})

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("Read a.txt")},
		Tools:        []ToolDefinition{{Name: "read_file", Parameters: map[string]interface{}{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Reading the file." {
		t.Errorf("unexpected partial text %q", resp.Text)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	// Order must match the backend document.
	if resp.ToolCalls[0].ToolName != "read_file" || resp.ToolCalls[1].ToolName != "list_dir" {
		t.Errorf("tool calls out of order: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].RawArguments != `{"path":"a.txt"}` {
		t.Errorf("unexpected raw arguments %q", resp.ToolCalls[0].RawArguments)
	}
}

func TestGenerateSynthesizesMissingCallID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"resp_3","output":[
			{"type":"function_call","name":"list_dir","arguments":"{}"}
		]}`)
	})

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("ls")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].CallID == "" {
		t.Errorf("expected a synthesized call id, got %+v", resp.ToolCalls)
	}
}

func TestGenerateEmptyOutput(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"resp_4","output":[]}`)
	})

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("...")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "" || resp.HasToolCalls() {
		t.Errorf("expected empty response, got %+v", resp)
	}
}

func TestGenerateProtocolErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `garbage`},
		{"unknown item type", `{"id":"x","output":[{"type":"mystery"}]}`},
		{"function call without name", `{"id":"x","output":[{"type":"function_call","call_id":"c1"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})
			_, err := client.Generate(context.Background(), GenerateRequest{
				Conversation: []Message{UserMessage("hi")},
			})
			if Category(err) != "BackendProtocolError" {
				t.Errorf("expected BackendProtocolError, got %v (category %s)", err, Category(err))
			}
		})
	}
}

func TestGenerateBackendUnavailable(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
	})
	if Category(err) != "BackendUnavailable" {
		t.Fatalf("expected BackendUnavailable for 503, got %v", err)
	}

	// A connection-level failure classifies the same way.
	server.Close()
	_, err = client.Generate(context.Background(), GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
	})
	if Category(err) != "BackendUnavailable" {
		t.Errorf("expected BackendUnavailable for refused connection, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"id":"x","output":[]}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Generate(ctx, GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
	})
	if Category(err) != "Timeout" {
		t.Errorf("expected Timeout, got %v (category %s)", err, Category(err))
	}
}

func TestGenerateCancelled(t *testing.T) {
	started := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"id":"x","output":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := client.Generate(ctx, GenerateRequest{
		Conversation: []Message{UserMessage("hi")},
	})
	if Category(err) != "Cancelled" {
		t.Errorf("expected Cancelled, got %v (category %s)", err, Category(err))
	}
}

func TestGenerateReplaysToolRounds(t *testing.T) {
	var got wireRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"id":"x","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done"}]}]}`)
	})

	conversation := []Message{
		UserMessage("Read a.txt"),
		AssistantMessage("", []ToolCallRequest{{CallID: "call_1", ToolName: "read_file", RawArguments: `{"path":"a.txt"}`}}),
		ToolResultMessage("call_1", "contents of a", false),
	}
	if _, err := client.Generate(context.Background(), GenerateRequest{Conversation: conversation}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []string
	for _, item := range got.Input {
		types = append(types, item.Type)
	}
	want := "message,function_call,function_call_output"
	if strings.Join(types, ",") != want {
		t.Errorf("expected input item types %s, got %s", want, strings.Join(types, ","))
	}
	if got.Input[2].CallID != "call_1" || got.Input[2].Output != "contents of a" {
		t.Errorf("function_call_output not carried: %+v", got.Input[2])
	}
}

func TestCheckModel(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"id":"test-model"},{"id":"other-model"}]}`)
	})

	status, err := client.CheckModel(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Online || status.ModelCount != 2 || !status.HasModel {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestCheckModelOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(server.URL, "test-model", time.Second)
	server.Close()

	status, err := client.CheckModel(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Online {
		t.Error("expected offline status for closed backend")
	}
}
