package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newSubtask(id string, deps ...string) *Subtask {
	return &Subtask{ID: id, Status: SubtaskPending, MaxAttempts: 2, DependsOn: deps}
}

func TestOrchestrationStateDependencyOrdering(t *testing.T) {
	a := newSubtask("a")
	b := newSubtask("b", "a")
	c := newSubtask("c", "a", "b")

	state := NewOrchestrationState([]*Subtask{a, b, c}, []string{"a", "b", "c"})

	require.Equal(t, a, state.NextPending())

	require.NoError(t, state.StartSubtask(a))
	require.Equal(t, "a", state.CurrentSubtask)
	require.NoError(t, state.CompleteSubtask(a, "diff-a"))
	require.Empty(t, state.CurrentSubtask, "CurrentSubtask must clear once the subtask completes")

	require.Equal(t, b, state.NextPending(), "b's only dependency (a) is now satisfied")

	require.NoError(t, state.StartSubtask(b))
	require.NoError(t, state.CompleteSubtask(b, "diff-b"))

	require.Equal(t, c, state.NextPending())
	require.NoError(t, state.StartSubtask(c))
	require.NoError(t, state.CompleteSubtask(c, "diff-c"))

	require.True(t, state.AllCompleted())
	require.Nil(t, state.NextPending())
}

func TestSubtaskRetryBudgetExhaustion(t *testing.T) {
	s := newSubtask("a")
	state := NewOrchestrationState([]*Subtask{s}, []string{"a"})

	require.NoError(t, state.StartSubtask(s))
	state.FailOrRetrySubtask(s)
	require.Equal(t, SubtaskPending, s.Status, "first failure re-queues under MAX_SUBTASK_ATTEMPTS")
	require.Empty(t, state.CurrentSubtask)

	require.NoError(t, state.StartSubtask(s))
	state.FailOrRetrySubtask(s)
	require.Equal(t, SubtaskFailed, s.Status, "exhausting the retry budget terminally fails the subtask")
	require.True(t, state.AnyFailed())
}
