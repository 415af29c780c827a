package agentloop

import (
	"context"
	"errors"
	"strings"

	"github.com/olanigan/small-giants/localllm"
)

// Generator is the slice of the backend client the engine depends on.
// *localllm.Client satisfies it; tests substitute scripted fakes.
type Generator interface {
	Generate(ctx context.Context, req localllm.GenerateRequest) (*localllm.ModelResponse, error)
}

// RunState is the terminal state of a run.
type RunState string

const (
	StateFinished RunState = "finished"
	StateFailed   RunState = "failed"
)

// Result is the outcome of one Execute call. Trace and Turns are
// populated even on failure so callers can inspect how far the run got;
// on a failed tool run Answer carries the model's last narration, if any.
type Result struct {
	Answer string
	State  RunState
	Trace  *ExecutionTrace
	Turns  []Turn
}

// runToolAugmented drives the model/tool loop for one task. Each
// iteration sends the conversation to the backend; a text-only response
// finishes the run, tool calls are executed sequentially in backend order
// and their results folded back into the conversation for the next round.
func (e *Engine) runToolAugmented(ctx context.Context, task Task, trace *ExecutionTrace, emitter *EventEmitter) (string, []Turn, error) {
	conv := NewConversation()
	conv.Append(NewUserTurn(task.Instruction))

	system := BuildSystemPrompt(e.registry.Sandbox().Root(), e.registry.Names())
	tools := e.registry.Definitions()
	steerArmed := true

	// Narration emitted alongside tool calls; returned as a partial
	// answer when the run fails before reaching a final response.
	var lastNarration string

	for {
		if err := terminalContextError(ctx); err != nil {
			return lastNarration, conv.Turns(), err
		}

		round := trace.Rounds()
		emitter.Emit(EventModelRound, map[string]interface{}{"round": round})

		req := localllm.GenerateRequest{
			System:       system,
			Conversation: conv.Messages(),
			Tools:        tools,
			Stream:       e.stream,
		}
		if e.stream {
			req.OnDelta = func(ev localllm.StreamEvent) {
				if ev.Type == localllm.StreamTextDelta {
					emitter.Emit(EventTextDelta, map[string]interface{}{"text": ev.TextDelta})
				}
			}
		}

		resp, err := e.client.Generate(ctx, req)
		if err != nil {
			return lastNarration, conv.Turns(), err
		}

		entry := TraceEntry{
			TurnIndex:      round,
			RequestSummary: summarizeRequest(conv),
			ToolCalls:      resp.ToolCalls,
		}

		if !resp.HasToolCalls() {
			text := resp.Text
			conv.Append(NewAssistantTurn(text, nil))
			entry.FinalText = &text
			trace.Add(entry)
			return text, conv.Turns(), nil
		}

		conv.Append(NewAssistantTurn(resp.Text, resp.ToolCalls))
		if resp.Text != "" {
			lastNarration = resp.Text
		}

		results := make([]ToolResult, 0, len(resp.ToolCalls))
		var interrupted bool
		for _, call := range resp.ToolCalls {
			emitter.Emit(EventToolCallStart, map[string]interface{}{
				"call_id": call.CallID,
				"tool":    call.ToolName,
			})
			result := e.registry.Invoke(ctx, call)
			// The event stream carries the full output; the conversation
			// gets the truncated form.
			emitter.Emit(EventToolCallEnd, map[string]interface{}{
				"call_id": result.CallID,
				"tool":    result.ToolName,
				"success": result.Success,
				"output":  result.Output,
			})
			result.Output = TruncateToolOutput(result.Output, result.ToolName)
			results = append(results, result)
			if ctx.Err() != nil {
				interrupted = true
				break
			}
		}
		conv.Append(NewToolResultsTurn(results))
		entry.ToolResults = results
		trace.Add(entry)

		if interrupted {
			return lastNarration, conv.Turns(), terminalContextError(ctx)
		}

		if trace.Rounds() >= task.MaxTurns {
			return lastNarration, conv.Turns(), &TurnLimitError{MaxTurns: task.MaxTurns}
		}

		// Steering re-arms once the repetition window breaks, so a model
		// that resumes looping after the first notice gets steered again.
		if DetectRepetition(conv.Turns(), repetitionWindow) {
			if steerArmed {
				conv.Append(NewSteeringTurn(steeringNotice))
				emitter.Emit(EventWarning, map[string]interface{}{"reason": "tool call repetition"})
				emitter.Emit(EventSteering, nil)
				steerArmed = false
			}
		} else {
			steerArmed = true
		}
	}
}

// summarizeRequest produces a short description of what the next model
// round was asked to continue from.
func summarizeRequest(conv *Conversation) string {
	last, ok := conv.Last()
	if !ok {
		return ""
	}
	switch last.Kind {
	case TurnUser, TurnSteering:
		return clip(last.TextContent(), 120)
	case TurnToolResults:
		if last.ToolResults == nil {
			return ""
		}
		names := make([]string, 0, len(last.ToolResults.Results))
		for _, r := range last.ToolResults.Results {
			names = append(names, r.ToolName)
		}
		return "tool results: " + strings.Join(names, ", ")
	default:
		return ""
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func terminalContextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &localllm.TimeoutError{ClientError: localllm.ClientError{Message: "run deadline exceeded", Cause: ctx.Err()}}
	case errors.Is(ctx.Err(), context.Canceled):
		return &localllm.CancelledError{ClientError: localllm.ClientError{Message: "run cancelled", Cause: ctx.Err()}}
	default:
		return nil
	}
}
