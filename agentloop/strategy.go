package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/olanigan/small-giants/localllm"
)

const critiquePrompt = "Review your previous answer for mistakes, omissions, and unclear reasoning. " +
	"Then write the corrected, final answer. If the previous answer was already correct, repeat it unchanged."

// Engine executes tasks against a backend client, picking the execution
// strategy from the task's mode.
type Engine struct {
	client   Generator
	registry *Registry
	stream   bool
	emitter  *EventEmitter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStreaming makes the engine request streamed responses and forward
// text deltas on the event channel.
func WithStreaming() EngineOption {
	return func(e *Engine) { e.stream = true }
}

// WithEmitter attaches an event emitter the engine reports run progress
// on. Without one, events are discarded.
func WithEmitter(emitter *EventEmitter) EngineOption {
	return func(e *Engine) { e.emitter = emitter }
}

// NewEngine creates an engine. The registry may be nil when only direct
// and reflective tasks will run.
func NewEngine(client Generator, registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{client: client, registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one task to completion. The returned Result always carries
// the trace and conversation, including on failure; the error, when
// non-nil, classifies the failure for FailureCategory.
func (e *Engine) Execute(ctx context.Context, task Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.Mode == ModeToolAugmented && e.registry == nil {
		return nil, fmt.Errorf("tool-augmented task requires a registry")
	}

	trace := NewExecutionTrace()
	emitter := e.emitter
	if emitter == nil {
		emitter = NewEventEmitter(trace.ID, 1)
	}
	emitter.Emit(EventRunStart, map[string]interface{}{
		"mode":      string(task.Mode),
		"max_turns": task.MaxTurns,
	})

	var (
		answer string
		turns  []Turn
		err    error
	)
	switch task.Mode {
	case ModeDirect:
		answer, turns, err = e.runDirect(ctx, task, trace, emitter)
	case ModeReflective:
		answer, turns, err = e.runReflective(ctx, task, trace, emitter)
	default:
		answer, turns, err = e.runToolAugmented(ctx, task, trace, emitter)
	}

	result := &Result{Answer: answer, Trace: trace, Turns: turns}
	if err != nil {
		result.State = StateFailed
		emitter.Emit(EventRunFailed, map[string]interface{}{
			"category": FailureCategory(err),
			"error":    err.Error(),
		})
		return result, err
	}
	result.State = StateFinished
	emitter.Emit(EventRunFinished, map[string]interface{}{"rounds": trace.Rounds()})
	return result, nil
}

// runDirect is a single no-tools exchange: one request, one answer.
func (e *Engine) runDirect(ctx context.Context, task Task, trace *ExecutionTrace, emitter *EventEmitter) (string, []Turn, error) {
	conv := NewConversation()
	conv.Append(NewUserTurn(task.Instruction))

	text, err := e.generateText(ctx, "", conv, trace, emitter)
	if err != nil {
		return "", conv.Turns(), err
	}
	conv.Append(NewAssistantTurn(text, nil))
	return text, conv.Turns(), nil
}

// runReflective produces a draft, then alternates critique rounds until
// the revision stops changing or the turn budget is spent. Tools are
// never offered in this mode.
func (e *Engine) runReflective(ctx context.Context, task Task, trace *ExecutionTrace, emitter *EventEmitter) (string, []Turn, error) {
	conv := NewConversation()
	conv.Append(NewUserTurn(task.Instruction))

	answer, err := e.generateText(ctx, BuildReflectivePrompt(), conv, trace, emitter)
	if err != nil {
		return "", conv.Turns(), err
	}
	conv.Append(NewAssistantTurn(answer, nil))

	for trace.Rounds() < task.MaxTurns {
		conv.Append(NewUserTurn(critiquePrompt))
		revision, err := e.generateText(ctx, BuildReflectivePrompt(), conv, trace, emitter)
		if err != nil {
			return "", conv.Turns(), err
		}
		conv.Append(NewAssistantTurn(revision, nil))
		if strings.TrimSpace(revision) == strings.TrimSpace(answer) {
			break
		}
		answer = revision
	}
	return answer, conv.Turns(), nil
}

// generateText issues one no-tools request and records it in the trace.
func (e *Engine) generateText(ctx context.Context, system string, conv *Conversation, trace *ExecutionTrace, emitter *EventEmitter) (string, error) {
	if err := terminalContextError(ctx); err != nil {
		return "", err
	}
	round := trace.Rounds()
	emitter.Emit(EventModelRound, map[string]interface{}{"round": round})

	req := localllm.GenerateRequest{
		System:       system,
		Conversation: conv.Messages(),
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
		return "", err
	}
	text := resp.Text
	trace.Add(TraceEntry{
		TurnIndex:      round,
		RequestSummary: summarizeRequest(conv),
		FinalText:      &text,
	})
	return text, nil
}
