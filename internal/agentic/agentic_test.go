package agentic_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/agentic"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/task"
)

func newWorkDirWithPassingTypecheck(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cascade"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cascade", "typecheck.sh"), []byte("exit 0\n"), 0o644))
	return dir
}

const validDiff = "--- a/x\n+++ b/x\n@@ -1,1 +1,1 @@\n-old\n+new\n"

type fakeReflector struct {
	outputs []agent.ReflectionOutput
	calls   int
}

func (f *fakeReflector) Run(ctx context.Context, in agent.Input) (agent.ReflectionOutput, error) {
	out := f.outputs[f.calls]
	f.calls++
	return out, nil
}

type fakeFixer struct {
	diffs []string
	calls int
}

func (f *fakeFixer) Run(ctx context.Context, in agent.Input) (agent.FixerOutput, error) {
	d := f.diffs[f.calls]
	f.calls++
	return agent.FixerOutput{Diff: d, CommitMessage: "fix"}, nil
}

func TestRunSucceedsOnFirstValidFix(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	reflector := &fakeReflector{outputs: []agent.ReflectionOutput{
		{Diagnosis: "off by one", RootCause: "code", Confidence: 0.9},
	}}
	fixer := &fakeFixer{diffs: []string{validDiff}}

	out, err := agentic.Run(context.Background(), tk, reflector, fixer, cmdexec.New(), newWorkDirWithPassingTypecheck(t), agent.Input{Task: tk},
		agentic.Params{MaxIterations: 3, MaxReplans: 1, ConfidenceThreshold: 0.5}, agentic.Hooks{})

	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, validDiff, out.Diff)
	require.Equal(t, 1, out.Iterations)
}

func TestRunTriggersReplanOnPlanRootCause(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	reflector := &fakeReflector{outputs: []agent.ReflectionOutput{
		{Diagnosis: "plan missed a file", RootCause: "plan", Confidence: 0.8},
	}}
	fixer := &fakeFixer{diffs: []string{validDiff}}

	var replanned bool
	out, err := agentic.Run(context.Background(), tk, reflector, fixer, cmdexec.New(), t.TempDir(), agent.Input{Task: tk},
		agentic.Params{MaxIterations: 3, MaxReplans: 1, ConfidenceThreshold: 0.5},
		agentic.Hooks{OnReplan: func(iteration int) { replanned = true }})

	require.NoError(t, err)
	require.False(t, out.Success)
	require.True(t, out.ReplanTriggered)
	require.True(t, replanned)
	require.Equal(t, 1, out.Replans)
}

func TestRunContinuesOnLowConfidenceThenExhausts(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	broken := "--- a/x\n+++ b/x\n@@ -1,9 +1,9 @@\n-old\n"
	reflector := &fakeReflector{outputs: []agent.ReflectionOutput{
		{Diagnosis: "unsure", RootCause: "code", Confidence: 0.1},
		{Diagnosis: "still unsure", RootCause: "code", Confidence: 0.1},
	}}
	fixer := &fakeFixer{diffs: []string{broken, broken}}

	var observed int
	out, err := agentic.Run(context.Background(), tk, reflector, fixer, cmdexec.New(), t.TempDir(), agent.Input{Task: tk},
		agentic.Params{MaxIterations: 2, MaxReplans: 1, ConfidenceThreshold: 0.5},
		agentic.Hooks{OnObservation: func(iteration int, diagnosis string) { observed++ }})

	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, 1, observed)
	require.Equal(t, 2, out.Iterations)
	require.NotEmpty(t, out.FailureReason)
}
