// Package localllm is a stateless transport client for a local
// text-generation backend speaking the response-document contract used by
// small-giants: a request carries a model name, an input item list, and
// optional tool definitions; the reply is either a single JSON document
// with an "output" array of message and function_call items, or a
// server-sent-event stream of incremental deltas with the same item
// typing. Both forms are normalized into a ModelResponse.
//
// The client performs exactly one request/response exchange per Generate
// call and never retries on its own; retry policy belongs to the caller.
// The Retry helper in this package implements the bounded-backoff policy
// a caller may wrap around backend faults.
//
// # Quick Start
//
//	client := localllm.NewClient("http://localhost:11434", "ibm/granite4", 60*time.Second)
//	resp, err := client.Generate(ctx, localllm.GenerateRequest{
//	    System:       "You are a coding agent.",
//	    Conversation: []localllm.Message{localllm.UserMessage("List the files here.")},
//	    Tools:        toolDefs,
//	})
//
// resp.Text holds accumulated narration; resp.ToolCalls holds any tool
// invocations the model requested, in backend order.
package localllm
