package decompose_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/decompose"
	"github.com/avery-holt/cascade/internal/task"
)

type fakeCoder struct {
	diffs map[string]string
}

func (f fakeCoder) Run(ctx context.Context, in agent.Input) (agent.CoderOutput, error) {
	return agent.CoderOutput{Diff: f.diffs[currentSubtaskHint(in)], CommitMessage: "sub"}, nil
}

// currentSubtaskHint recovers which subtask ID the prompt was built for by
// parsing decompose's "Implement subtask <id> targeting: ..." prefix.
func currentSubtaskHint(in agent.Input) string {
	const marker = "Implement subtask "
	idx := strings.Index(in.Prompt, marker)
	if idx < 0 {
		return ""
	}
	rest := in.Prompt[idx+len(marker):]
	end := strings.Index(rest, " targeting")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func TestBuildExecutionOrderRespectsDependencies(t *testing.T) {
	subtasks := []*task.Subtask{
		{ID: "c", DependsOn: []string{"b"}},
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}
	order, err := decompose.BuildExecutionOrder(subtasks)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestBuildExecutionOrderDetectsCycle(t *testing.T) {
	subtasks := []*task.Subtask{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}
	_, err := decompose.BuildExecutionOrder(subtasks)
	require.Error(t, err)
}

func TestBuildExecutionOrderRejectsUnknownDependency(t *testing.T) {
	subtasks := []*task.Subtask{
		{ID: "a", DependsOn: []string{"ghost"}},
	}
	_, err := decompose.BuildExecutionOrder(subtasks)
	require.Error(t, err)
}

func TestDecomposeBuildsOrchestrationState(t *testing.T) {
	out := agent.BreakdownOutput{Tasks: []agent.BreakdownTask{
		{ID: "a", Title: "setup", TargetFiles: []string{"a.go"}},
		{ID: "b", Title: "feature", TargetFiles: []string{"b.go"}, DependsOn: []string{"a"}},
	}}
	state, err := decompose.Decompose(out, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, state.ExecutionOrder)
	require.Len(t, state.Subtasks, 2)
}

func TestTickAdvancesOneSubtaskPerCall(t *testing.T) {
	out := agent.BreakdownOutput{Tasks: []agent.BreakdownTask{
		{ID: "a", Title: "setup", TargetFiles: []string{"a.go"}},
		{ID: "b", Title: "feature", TargetFiles: []string{"b.go"}, DependsOn: []string{"a"}},
	}}
	state, err := decompose.Decompose(out, 2)
	require.NoError(t, err)

	parent := task.New("acme/x", 1, 3)
	parent.Orchestration = state
	coder := fakeCoder{diffs: map[string]string{"a": "diff-a", "b": "diff-b"}}

	res, err := decompose.Tick(context.Background(), parent, coder, nil)
	require.NoError(t, err)
	require.Equal(t, decompose.TickCompleted, res.Outcome)
	require.Equal(t, "a", res.SubtaskID)
	require.False(t, state.AllCompleted())

	res, err = decompose.Tick(context.Background(), parent, coder, nil)
	require.NoError(t, err)
	require.Equal(t, decompose.TickCompleted, res.Outcome)
	require.Equal(t, "b", res.SubtaskID)
	require.True(t, state.AllCompleted())

	res, err = decompose.Tick(context.Background(), parent, coder, nil)
	require.NoError(t, err)
	require.Equal(t, decompose.TickAggregated, res.Outcome)
	require.Contains(t, res.Diff, "diff-a")
	require.Contains(t, res.Diff, "diff-b")
}
