// Command smallgiants runs coding tasks against a locally served model.
// With a task on the command line it executes once and prints the answer;
// without one it starts an interactive chat. It can also probe the
// backend (-status) or serve its tools over MCP (-mcp).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/olanigan/small-giants/agentloop"
	"github.com/olanigan/small-giants/config"
	"github.com/olanigan/small-giants/localllm"
	"github.com/olanigan/small-giants/mcpserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	dirFlag := flag.String("dir", ".", "Working directory the task is confined to")
	modeFlag := flag.String("mode", "", "Execution mode: 'direct', 'reflective', or 'tools'")
	maxTurnsFlag := flag.Int("max-turns", 0, "Maximum model rounds before the run fails")
	baseURLFlag := flag.String("base-url", "", "Inference server base URL")
	modelFlag := flag.String("model", "", "Model name to request")
	timeoutFlag := flag.Int("timeout", 0, "Per-request timeout in seconds")
	streamFlag := flag.Bool("stream", false, "Stream answers as they are generated")
	retriesFlag := flag.Int("retries", 0, "Retry transient backend failures this many times")
	statusFlag := flag.Bool("status", false, "Probe the backend and exit")
	mcpFlag := flag.Bool("mcp", false, "Serve solve_task and check_status over MCP on stdio")
	flag.Parse()

	cfg, err := config.Load(*dirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	applyFlags(cfg, *modeFlag, *maxTurnsFlag, *baseURLFlag, *modelFlag, *timeoutFlag, *streamFlag, *retriesFlag)

	logger, closeLog, err := buildLogger(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := localllm.NewClient(cfg.BaseURL, cfg.Model, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)

	if *statusFlag {
		return printStatus(ctx, client, cfg.Model)
	}

	mode, err := agentloop.ParseMode(cfg.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	var generator agentloop.Generator = client
	if cfg.Retries > 0 {
		policy := localllm.DefaultRetryPolicy()
		policy.MaxRetries = cfg.Retries
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			logger.Warn("retrying backend request", "attempt", attempt, "delay", delay, "error", err)
		}
		generator = &retryingGenerator{client: client, policy: policy}
	}

	if *mcpFlag {
		return serveMCP(ctx, generator, client, cfg, *dirFlag, mode, logger)
	}

	var engineOpts []agentloop.EngineOption
	if cfg.Stream {
		emitter := agentloop.NewEventEmitter("cli", 256)
		defer emitter.Close()
		go printDeltas(emitter.Events())
		engineOpts = append(engineOpts, agentloop.WithStreaming(), agentloop.WithEmitter(emitter))
	}

	engine, err := buildEngine(generator, cfg, *dirFlag, logger, engineOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	instruction := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(instruction) == "" {
		return chat(ctx, engine, *dirFlag, mode, cfg.MaxTurns, cfg.Stream)
	}
	return runTask(ctx, engine, agentloop.Task{
		Instruction: instruction,
		WorkingDir:  *dirFlag,
		Mode:        mode,
		MaxTurns:    cfg.MaxTurns,
	}, cfg.Stream)
}

// applyFlags folds explicitly set command line values over the file
// configuration.
func applyFlags(cfg *config.Config, mode string, maxTurns int, baseURL, model string, timeout int, stream bool, retries int) {
	if mode != "" {
		cfg.Mode = mode
	}
	if maxTurns > 0 {
		cfg.MaxTurns = maxTurns
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model != "" {
		cfg.Model = model
	}
	if timeout > 0 {
		cfg.RequestTimeoutSeconds = timeout
	}
	if stream {
		cfg.Stream = true
	}
	if retries > 0 {
		cfg.Retries = retries
	}
}

// buildLogger fans log records out to stderr and, when configured, a
// JSON log file.
func buildLogger(logFile string) (*slog.Logger, func(), error) {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	closeLog := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeLog = func() { f.Close() }
	}
	return slog.New(slogmulti.Fanout(handlers...)), closeLog, nil
}

func buildEngine(generator agentloop.Generator, cfg *config.Config, workDir string, logger *slog.Logger, opts ...agentloop.EngineOption) (*agentloop.Engine, error) {
	sandbox, err := agentloop.NewSandbox(workDir, cfg.DenyPatterns...)
	if err != nil {
		return nil, err
	}
	registry := agentloop.NewRegistry(sandbox)
	if err := agentloop.RegisterCoreTools(registry); err != nil {
		return nil, err
	}
	logger.Debug("engine ready", "dir", sandbox.Root(), "tools", registry.Names())
	return agentloop.NewEngine(generator, registry, opts...), nil
}

// printDeltas echoes streamed answer text to stdout as it arrives.
func printDeltas(events <-chan agentloop.RunEvent) {
	for ev := range events {
		if ev.Kind == agentloop.EventTextDelta {
			fmt.Print(ev.Data["text"])
		}
	}
}

// runTask executes a single task and prints the answer. With streaming
// enabled the text already went out as deltas, so only the trailing
// newline is added.
func runTask(ctx context.Context, engine *agentloop.Engine, task agentloop.Task, stream bool) int {
	result, err := engine.Execute(ctx, task)
	if err != nil {
		// A failed run still surfaces whatever partial answer accumulated.
		if result != nil && result.Answer != "" {
			if stream {
				fmt.Println()
			} else {
				fmt.Println(result.Answer)
			}
		}
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", agentloop.FailureCategory(err), err)
		return exitCode(err)
	}
	if stream {
		fmt.Println()
	} else {
		fmt.Println(result.Answer)
	}
	return 0
}

// chat runs the interactive loop. Each line becomes a task; the
// transcript so far is carried into the next instruction so the model
// keeps context. exit and quit leave, clear drops the transcript.
func chat(ctx context.Context, engine *agentloop.Engine, workDir string, mode agentloop.Mode, maxTurns int, stream bool) int {
	fmt.Println("chat mode. Type a task, or 'exit', 'quit', 'clear'.")
	scanner := bufio.NewScanner(os.Stdin)
	var transcript []string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return 0
		case "clear":
			transcript = nil
			fmt.Println("conversation cleared")
			continue
		}

		instruction := line
		if len(transcript) > 0 {
			instruction = "Previous conversation:\n" + strings.Join(transcript, "\n") +
				"\n\nNew request: " + line
		}

		result, err := engine.Execute(ctx, agentloop.Task{
			Instruction: instruction,
			WorkingDir:  workDir,
			Mode:        mode,
			MaxTurns:    maxTurns,
		})
		if err != nil {
			if agentloop.FailureCategory(err) == "Cancelled" {
				return exitCode(err)
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if stream {
			fmt.Println()
		} else {
			fmt.Println(result.Answer)
		}
		transcript = append(transcript, "User: "+line, "Assistant: "+result.Answer)
	}
}

func printStatus(ctx context.Context, client *localllm.Client, model string) int {
	status, err := client.CheckModel(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	if !status.Online {
		fmt.Println("backend: offline")
		return 2
	}
	fmt.Printf("backend: online (%d models)\n", status.ModelCount)
	if status.HasModel {
		fmt.Printf("model %q: available\n", model)
	} else {
		fmt.Printf("model %q: not served\n", model)
	}
	return 0
}

func serveMCP(ctx context.Context, generator agentloop.Generator, client *localllm.Client, cfg *config.Config, defaultDir string, mode agentloop.Mode, logger *slog.Logger) int {
	srv, err := mcpserver.New(mcpserver.Options{
		Factory: func(workDir string) (*agentloop.Engine, error) {
			return buildEngine(generator, cfg, workDir, logger)
		},
		Prober:     client,
		DefaultDir: defaultDir,
		Mode:       mode,
		MaxTurns:   cfg.MaxTurns,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("serving MCP on stdio")
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// exitCode maps a failure to the process exit code.
func exitCode(err error) int {
	switch agentloop.FailureCategory(err) {
	case "BackendUnavailable":
		return 2
	case "BackendProtocolError":
		return 3
	case "Timeout":
		return 4
	case "Cancelled":
		return 5
	case "TurnLimitExceeded":
		return 6
	default:
		return 1
	}
}

// retryingGenerator wraps the client with the caller-side retry policy.
type retryingGenerator struct {
	client *localllm.Client
	policy localllm.RetryPolicy
}

func (g *retryingGenerator) Generate(ctx context.Context, req localllm.GenerateRequest) (*localllm.ModelResponse, error) {
	return localllm.Retry(ctx, g.policy, func(ctx context.Context) (*localllm.ModelResponse, error) {
		return g.client.Generate(ctx, req)
	})
}
