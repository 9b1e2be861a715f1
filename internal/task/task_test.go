package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskTransitionValidatesAgainstClosedSet(t *testing.T) {
	tk := New("acme/x", 1, 3)
	require.Equal(t, StatusNew, tk.Status)

	require.NoError(t, tk.Transition(StatusPlanning))
	require.Equal(t, StatusPlanning, tk.Status)

	err := tk.Transition(StatusCompleted)
	require.Error(t, err)
	require.Equal(t, StatusPlanning, tk.Status, "a rejected transition must not mutate status")
}

func TestTaskTransitionRejectedFromTerminal(t *testing.T) {
	tk := New("acme/x", 1, 3)
	tk.Fail("TypecheckFailed", "boom")
	require.True(t, tk.Status.IsTerminal())

	err := tk.Transition(StatusNew)
	require.Error(t, err)
}

func TestIncrementAttemptRespectsBudget(t *testing.T) {
	tk := New("acme/x", 1, 2)
	require.NoError(t, tk.IncrementAttempt())
	require.NoError(t, tk.IncrementAttempt())
	require.Equal(t, 2, tk.AttemptCount)

	err := tk.IncrementAttempt()
	require.Error(t, err)
	require.Equal(t, 2, tk.AttemptCount, "attempt_count must never exceed max_attempts")
}

func TestSetPRNumberRejectsBatchMembership(t *testing.T) {
	tk := New("acme/x", 1, 3)
	require.NoError(t, tk.JoinBatch(New("acme/x", 2, 3).ID))

	err := tk.SetPRNumber(42, "https://example.test/pr/42")
	require.Error(t, err, "a task cannot be both in a batch and have a direct PR")
}

func TestJoinBatchRejectsExistingPR(t *testing.T) {
	tk := New("acme/x", 1, 3)
	require.NoError(t, tk.SetPRNumber(42, "https://example.test/pr/42"))

	err := tk.JoinBatch(New("acme/x", 2, 3).ID)
	require.Error(t, err)
}

func TestLeaveBatchPreservesAttemptCount(t *testing.T) {
	tk := New("acme/x", 1, 3)
	require.NoError(t, tk.IncrementAttempt())
	require.NoError(t, tk.JoinBatch(New("acme/x", 2, 3).ID))

	tk.LeaveBatch()

	require.Nil(t, tk.BatchID)
	require.Equal(t, 1, tk.AttemptCount, "batch fallback must not reset attempt_count")
}
