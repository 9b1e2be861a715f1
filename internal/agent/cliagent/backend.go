// Package cliagent provides a concrete implementation of every
// internal/agent family (Planner, Coder, Fixer, Reviewer, Breakdown,
// Reflector) backed by a local LLM coding CLI, adapted from the teacher's
// internal/llm package (a single Backend interface shelling out to the
// Claude Code binary with streaming stream-json output). spec.md §1 treats
// the agent families as out-of-scope external collaborators; this package
// is the one concrete, in-repo implementation a deployer can wire in when
// no other agent runtime is available, the same way the teacher shipped
// Claude as its only real backend alongside an interface.
package cliagent

import (
	"context"
	"io"
)

// Backend runs a prompt against a local LLM CLI tool and returns its
// streaming stream-json output.
type Backend interface {
	Name() string
	Execute(ctx context.Context, opts ExecuteOptions) (io.ReadCloser, error)
}

// ExecuteOptions mirrors the teacher's llm.ExecuteOptions.
type ExecuteOptions struct {
	Prompt       string
	ContextFiles []string
	Model        string
	AllowedTools []string
	WorkDir      string
}
