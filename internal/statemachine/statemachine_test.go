package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/statemachine"
	"github.com/avery-holt/cascade/internal/task"
)

func TestAllowedMatchesClosedSet(t *testing.T) {
	require.True(t, statemachine.Allowed(task.StatusNew, task.StatusPlanning))
	require.True(t, statemachine.Allowed(task.StatusNew, task.StatusFailed))
	require.False(t, statemachine.Allowed(task.StatusNew, task.StatusCompleted))
	require.False(t, statemachine.Allowed(task.StatusCompleted, task.StatusNew))
	require.False(t, statemachine.Allowed(task.StatusFailed, task.StatusNew))
}

func TestReviewingSelfLoopAllowed(t *testing.T) {
	require.True(t, statemachine.Allowed(task.StatusReviewing, task.StatusReviewing))
}

func TestNextActionTable(t *testing.T) {
	cases := map[task.Status]statemachine.Action{
		task.StatusNew:               statemachine.ActionPlan,
		task.StatusPlanningDone:      statemachine.ActionCode,
		task.StatusBreakdownDone:     statemachine.ActionOrchestrate,
		task.StatusTestsFailed:       statemachine.ActionFix,
		task.StatusReviewing:         statemachine.ActionReview,
		task.StatusReviewApproved:    statemachine.ActionOpenPR,
		task.StatusCompleted:         statemachine.ActionDone,
		task.StatusFailed:            statemachine.ActionFailedTerminal,
		task.StatusWaitingBatch:      statemachine.ActionWait,
		task.StatusCoding:            statemachine.ActionWait,
	}
	for status, want := range cases {
		require.Equal(t, want, statemachine.NextAction(status), "status %s", status)
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, to := range task.AllStatuses() {
		require.False(t, statemachine.Allowed(task.StatusCompleted, to))
		require.False(t, statemachine.Allowed(task.StatusFailed, to))
	}
}
