package batch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/batch"
	"github.com/avery-holt/cascade/internal/store/memory"
	"github.com/avery-holt/cascade/internal/task"
)

type inprocLocker struct {
	mu sync.Mutex
}

func (l *inprocLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	return func() { l.mu.Unlock() }, nil
}

func approvedTask(repo string, issue int, files ...string) *task.Task {
	t := task.New(repo, issue, 3)
	t.TargetFiles = files
	t.Status = task.StatusReviewApproved
	return t
}

func TestJoinFormsNewBatchWhenMinSizeReached(t *testing.T) {
	s := memory.New()
	c := batch.New(s, &inprocLocker{})
	limits := batch.Limits{MinBatchSize: 2, MaxBatchSize: 10, Timeout: 30 * time.Minute}

	first := approvedTask("acme/x", 1, "src/app.ts")
	sibling := approvedTask("acme/x", 2, "src/app.ts")

	outcome, b, err := c.Join(context.Background(), first, []*task.Task{sibling}, limits)
	require.NoError(t, err)
	require.Equal(t, batch.OutcomeFormedNew, outcome)
	require.NotNil(t, b)
	require.Equal(t, task.StatusWaitingBatch, first.Status)
}

func TestJoinStaysIndividualBelowMinSize(t *testing.T) {
	s := memory.New()
	c := batch.New(s, &inprocLocker{})
	limits := batch.Limits{MinBatchSize: 3, MaxBatchSize: 10, Timeout: 30 * time.Minute}

	first := approvedTask("acme/x", 1, "src/app.ts")
	sibling := approvedTask("acme/x", 2, "src/app.ts")

	outcome, b, err := c.Join(context.Background(), first, []*task.Task{sibling}, limits)
	require.NoError(t, err)
	require.Equal(t, batch.OutcomeIndividual, outcome)
	require.Nil(t, b)
}

func TestJoinJoinsExistingPendingBatch(t *testing.T) {
	s := memory.New()
	c := batch.New(s, &inprocLocker{})
	limits := batch.Limits{MinBatchSize: 2, MaxBatchSize: 10, Timeout: 30 * time.Minute}

	a := approvedTask("acme/x", 1, "src/app.ts")
	b := approvedTask("acme/x", 2, "src/app.ts")
	_, _, err := c.Join(context.Background(), a, []*task.Task{b}, limits)
	require.NoError(t, err)

	third := approvedTask("acme/x", 3, "src/app.ts")
	outcome, batchObj, err := c.Join(context.Background(), third, nil, limits)
	require.NoError(t, err)
	require.Equal(t, batch.OutcomeJoinedExisting, outcome)
	require.NotNil(t, batchObj)
}

func TestReadyWhenAllMembersWaitingOrApproved(t *testing.T) {
	b := task.NewBatch("acme/x", "main")
	members := []*task.Task{
		{Status: task.StatusWaitingBatch},
		{Status: task.StatusReviewApproved},
	}
	require.True(t, batch.Ready(b, members, batch.Limits{Timeout: time.Hour}))
}

func TestReadyFalseWhileAMemberIsStillCoding(t *testing.T) {
	b := task.NewBatch("acme/x", "main")
	members := []*task.Task{
		{Status: task.StatusWaitingBatch},
		{Status: task.StatusCoding},
	}
	require.False(t, batch.Ready(b, members, batch.Limits{Timeout: time.Hour}))
}

func TestReadyTrueAfterTimeoutRegardlessOfMemberStatus(t *testing.T) {
	b := task.NewBatch("acme/x", "main")
	b.CreatedAt = time.Now().Add(-time.Hour)
	members := []*task.Task{{Status: task.StatusCoding}}
	require.True(t, batch.Ready(b, members, batch.Limits{Timeout: 30 * time.Minute}))
}
