// Package mcpserver exposes the engine over the Model Context Protocol so
// MCP-capable hosts can delegate coding tasks to a locally served model.
// Two tools are published: solve_task runs one task to completion inside
// a caller-chosen directory, and check_status probes the backend.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/olanigan/small-giants/agentloop"
	"github.com/olanigan/small-giants/localllm"
)

// EngineFactory builds an engine sandboxed to workDir. The server calls
// it once per solve_task invocation so each task is confined to the
// directory its caller named.
type EngineFactory func(workDir string) (*agentloop.Engine, error)

// StatusProber is the slice of the backend client check_status needs.
type StatusProber interface {
	CheckModel(ctx context.Context) (*localllm.ModelStatus, error)
	Model() string
}

// Server bridges MCP tool calls onto the engine.
type Server struct {
	factory    EngineFactory
	prober     StatusProber
	defaultDir string
	mode       agentloop.Mode
	maxTurns   int
	logger     *slog.Logger
}

// Options configures a Server.
type Options struct {
	Factory    EngineFactory
	Prober     StatusProber
	DefaultDir string
	Mode       agentloop.Mode
	MaxTurns   int
	Logger     *slog.Logger
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("mcpserver: engine factory is required")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("mcpserver: status prober is required")
	}
	if opts.MaxTurns < 1 {
		return nil, fmt.Errorf("mcpserver: max turns must be at least 1, got %d", opts.MaxTurns)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mode := opts.Mode
	if mode == "" {
		mode = agentloop.ModeToolAugmented
	}
	return &Server{
		factory:    opts.Factory,
		prober:     opts.Prober,
		defaultDir: opts.DefaultDir,
		mode:       mode,
		maxTurns:   opts.MaxTurns,
		logger:     logger,
	}, nil
}

type solveTaskArgs struct {
	Task string `json:"task" jsonschema:"the coding task to perform"`
	Path string `json:"path,omitempty" jsonschema:"directory to work in; defaults to the server's working directory"`
	Mode string `json:"mode,omitempty" jsonschema:"execution mode: direct, reflective, or tools"`
}

type checkStatusArgs struct{}

// Run serves MCP over stdio until ctx is cancelled or the host closes
// the transport.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer().Run(ctx, mcp.NewStdioTransport())
}

func (s *Server) mcpServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "small-giants", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "solve_task",
		Description: "Run a coding task against the local model. The task executes inside the given directory and returns the final answer.",
	}, s.solveTask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_status",
		Description: "Check whether the local inference backend is reachable and serving the configured model.",
	}, s.checkStatus)
	return server
}

func (s *Server) solveTask(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[solveTaskArgs]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	workDir := args.Path
	if workDir == "" {
		workDir = s.defaultDir
	}
	mode := s.mode
	if args.Mode != "" {
		parsed, err := agentloop.ParseMode(args.Mode)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		mode = parsed
	}

	engine, err := s.factory(workDir)
	if err != nil {
		return errorResult(fmt.Sprintf("cannot work in %s: %v", workDir, err)), nil
	}

	s.logger.Info("solve_task", "dir", workDir, "mode", string(mode))
	result, err := engine.Execute(ctx, agentloop.Task{
		Instruction: args.Task,
		WorkingDir:  workDir,
		Mode:        mode,
		MaxTurns:    s.maxTurns,
	})
	if err != nil {
		s.logger.Error("solve_task failed", "category", agentloop.FailureCategory(err), "error", err)
		text := fmt.Sprintf("task failed (%s): %v", agentloop.FailureCategory(err), err)
		if result != nil && result.Answer != "" {
			text += "\n\npartial answer before the failure:\n" + result.Answer
		}
		return errorResult(text), nil
	}
	s.logger.Info("solve_task finished", "rounds", result.Trace.Rounds())
	return textResult(result.Answer), nil
}

func (s *Server) checkStatus(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[checkStatusArgs]) (*mcp.CallToolResultFor[any], error) {
	status, err := s.prober.CheckModel(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("status probe failed: %v", err)), nil
	}
	if !status.Online {
		return textResult("backend offline: the inference server is not reachable"), nil
	}
	text := fmt.Sprintf("backend online, %d models available", status.ModelCount)
	if status.HasModel {
		text += fmt.Sprintf(", configured model %q is served", s.prober.Model())
	} else {
		text += fmt.Sprintf(", configured model %q is NOT served", s.prober.Model())
	}
	return textResult(text), nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
