package agentloop

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

const basePrompt = `You are a coding assistant working inside a sandboxed project directory.
You solve the user's task by reading, searching, and editing files with the tools provided.

Rules:
- All paths are relative to the working directory. You cannot access files outside it.
- Prefer reading a file before editing it.
- When the task is complete, reply with a plain text answer and no tool calls.`

const reflectivePrompt = `You are a careful assistant. Answer the user's task directly.
When asked to critique a draft, point out concrete errors and omissions, then produce a corrected answer.`

// BuildSystemPrompt assembles the system prompt for a tool-augmented run:
// base instructions, an environment block, and the tool catalog.
func BuildSystemPrompt(workingDir string, tools []string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\n")
	sb.WriteString(buildEnvironmentContext(workingDir))
	if len(tools) > 0 {
		sb.WriteString("\n\nAvailable tools: ")
		sb.WriteString(strings.Join(tools, ", "))
	}
	return sb.String()
}

// BuildReflectivePrompt returns the system prompt for draft-and-critique
// runs, which never see tools.
func BuildReflectivePrompt() string {
	return reflectivePrompt
}

func buildEnvironmentContext(workingDir string) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Platform: %s\n", runtime.GOOS)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}
