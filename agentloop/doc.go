// Package agentloop implements the tool-calling orchestration engine at
// the heart of small-giants.
//
// It mediates between a local text-generation backend (package localllm)
// and a set of sandboxed filesystem tools, running a bounded multi-turn
// loop: generate, detect requested tool calls, execute them inside the
// sandbox, feed the results back, and repeat until the model produces a
// final text-only answer or the turn limit is hit.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Engine: the per-configuration entry point that selects one of the
//     three execution strategies (Direct, Reflective, ToolAugmented) for
//     each Task and runs it.
//   - Sandbox: resolves and validates every path argument against a
//     fixed root, rejecting escapes before any filesystem access.
//   - Registry: tool catalog keyed by name, validated at registration
//     time, dispatching invocations through a parse/validate/resolve
//     pipeline that always yields a ToolResult.
//   - Conversation: the single-owner append-only turn history threaded
//     through each generate call.
//   - ExecutionTrace and EventEmitter: per-run observability artifacts;
//     the trace records one entry per loop iteration, the emitter streams
//     typed events to the host application.
//
// # Quick Start
//
//	sandbox, _ := agentloop.NewSandbox("/path/to/project")
//	registry := agentloop.NewRegistry(sandbox)
//	agentloop.RegisterCoreTools(registry)
//
//	engine := agentloop.NewEngine(client, registry)
//	result, err := engine.Execute(ctx, agentloop.Task{
//	    Instruction: "Summarize main.go",
//	    WorkingDir:  "/path/to/project",
//	    Mode:        agentloop.ModeToolAugmented,
//	    MaxTurns:    8,
//	})
//
// Tool-layer faults (unknown tool, malformed or invalid arguments,
// sandbox violations, execution failures) never abort a run; they are
// folded into failed ToolResults and fed back to the model. Backend
// faults, timeouts, cancellation, and the turn limit are terminal and
// surface as the run's error alongside the partial trace.
package agentloop
