// Package batch implements the BatchCoordinator and DiffCombiner from
// spec.md §4.9: grouping file-overlapping approved tasks into one PR instead
// of one-PR-per-task. Batching itself has no teacher analogue (ralph always
// opens one PR per run); the membership/readiness bookkeeping is grounded on
// the task.Batch/task.BatchMembership data model already shaped after
// jordigilh-kubernaut's segregated store interfaces.
package batch

import (
	"context"
	"time"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// Limits bundles the batching knobs from spec.md §6.1's defaults table.
type Limits struct {
	MinBatchSize int
	MaxBatchSize int
	Timeout      time.Duration
}

// Coordinator implements spec.md §4.9's four-step membership algorithm.
type Coordinator struct {
	Store  store.BatchStore
	Locker store.Locker
}

// New constructs a Coordinator over the given persistence surfaces.
func New(s store.BatchStore, l store.Locker) *Coordinator {
	return &Coordinator{Store: s, Locker: l}
}

// Outcome reports what Join decided for t.
type Outcome string

const (
	OutcomeAlreadyMember  Outcome = "already_member"
	OutcomeJoinedExisting Outcome = "joined_existing"
	OutcomeFormedNew      Outcome = "formed_new"
	OutcomeIndividual     Outcome = "individual"
)

// Join runs spec.md §4.9's membership check for an approved task about to
// open a PR, serializing the batch-pending-set mutation per repo (spec.md
// §5: "writes serialized per repo to prevent double-membership").
func (c *Coordinator) Join(ctx context.Context, t *task.Task, approvedSiblings []*task.Task, limits Limits) (Outcome, *task.Batch, error) {
	unlock, err := c.Locker.Lock(ctx, "batch:"+t.Repo)
	if err != nil {
		return "", nil, cerr.Wrap(cerr.InvalidState, "failed to acquire batch lock", t.ID.String(), true, err)
	}
	defer unlock()

	// 1. Membership check.
	if t.BatchID != nil {
		b, err := c.Store.GetBatch(ctx, *t.BatchID)
		if err != nil {
			return "", nil, err
		}
		return OutcomeAlreadyMember, b, nil
	}

	// 2. Join existing.
	pending, err := c.Store.GetPendingBatches(ctx, t.Repo)
	if err != nil {
		return "", nil, err
	}
	for _, b := range pending {
		if b.OverlapsFiles(t.TargetFiles) && len(mustTasks(ctx, c.Store, b)) < limits.MaxBatchSize {
			if err := c.Store.AddTaskToBatch(ctx, t.ID, b.ID); err != nil {
				return "", nil, err
			}
			if err := t.JoinBatch(b.ID); err != nil {
				return "", nil, err
			}
			if err := t.Transition(task.StatusWaitingBatch); err != nil {
				return "", nil, err
			}
			b.AddFiles(t.TargetFiles)
			if err := c.Store.UpdateBatch(ctx, b); err != nil {
				return "", nil, err
			}
			return OutcomeJoinedExisting, b, nil
		}
	}

	// 3. Form new: search approved siblings sharing a file with t.
	shared := sharingFile(t, approvedSiblings)
	if len(shared)+1 >= limits.MinBatchSize {
		b := task.NewBatch(t.Repo, "main")
		b.AddFiles(t.TargetFiles)
		if err := c.Store.CreateBatch(ctx, b); err != nil {
			return "", nil, err
		}
		members := append([]*task.Task{t}, shared...)
		if len(members) > limits.MaxBatchSize {
			members = members[:limits.MaxBatchSize]
		}
		for _, m := range members {
			if err := c.Store.AddTaskToBatch(ctx, m.ID, b.ID); err != nil {
				return "", nil, err
			}
			if err := m.JoinBatch(b.ID); err != nil {
				return "", nil, err
			}
			if err := m.Transition(task.StatusWaitingBatch); err != nil {
				return "", nil, err
			}
			b.AddFiles(m.TargetFiles)
		}
		if err := c.Store.UpdateBatch(ctx, b); err != nil {
			return "", nil, err
		}
		return OutcomeFormedNew, b, nil
	}

	// 4. Otherwise: individual PR, caller's responsibility.
	return OutcomeIndividual, nil, nil
}

// sharingFile returns the members of candidates whose TargetFiles overlap
// t's.
func sharingFile(t *task.Task, candidates []*task.Task) []*task.Task {
	want := make(map[string]bool, len(t.TargetFiles))
	for _, f := range t.TargetFiles {
		want[f] = true
	}
	var out []*task.Task
	for _, cand := range candidates {
		for _, f := range cand.TargetFiles {
			if want[f] {
				out = append(out, cand)
				break
			}
		}
	}
	return out
}

func mustTasks(ctx context.Context, s store.BatchStore, b *task.Batch) []*task.Task {
	members, err := s.GetTasksByBatch(ctx, b.ID)
	if err != nil {
		return nil
	}
	return members
}

// Ready implements spec.md §4.9.3: a batch is ready when every member is
// WaitingBatch or ReviewApproved, or when it has aged past the timeout.
func Ready(b *task.Batch, members []*task.Task, limits Limits) bool {
	if b.TimedOut(limits.Timeout) {
		return true
	}
	for _, m := range members {
		if m.Status != task.StatusWaitingBatch && m.Status != task.StatusReviewApproved {
			return false
		}
	}
	return len(members) > 0
}
