package cliagent

import (
	"fmt"
	"strings"

	"github.com/avery-holt/cascade/internal/agent"
)

// buildPrompt assembles a single CLI prompt from an agent.Input: the
// family's role instruction, the task's identity and current artifacts, and
// any context files inlined the way the teacher's planner inlined codebase
// map files alongside the phase prompt.
func buildPrompt(role string, in agent.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", role)
	if in.Task != nil {
		fmt.Fprintf(&b, "Repo: %s\nIssue: #%d\n", in.Task.Repo, in.Task.Issue)
		if len(in.Task.Plan) > 0 {
			fmt.Fprintf(&b, "Plan:\n  - %s\n", strings.Join(in.Task.Plan, "\n  - "))
		}
		if len(in.Task.TargetFiles) > 0 {
			fmt.Fprintf(&b, "Target files: %s\n", strings.Join(in.Task.TargetFiles, ", "))
		}
		if in.Task.CurrentDiff != "" {
			fmt.Fprintf(&b, "Current diff:\n%s\n", in.Task.CurrentDiff)
		}
		if in.Task.LastError != "" {
			fmt.Fprintf(&b, "Last error:\n%s\n", in.Task.LastError)
		}
	}
	if in.Prompt != "" {
		fmt.Fprintf(&b, "\n%s\n", in.Prompt)
	}
	for path, content := range in.ContextFiles {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", path, content)
	}
	return b.String()
}

func execOptions(role string, in agent.Input, workDir string) ExecuteOptions {
	return ExecuteOptions{
		Prompt:  buildPrompt(role, in),
		Model:   in.Model,
		WorkDir: workDir,
	}
}
