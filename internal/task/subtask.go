package task

import (
	"github.com/google/uuid"

	"github.com/avery-holt/cascade/internal/cerr"
)

// Subtask is an element of OrchestrationState, produced by decomposing an
// M/L task (spec.md §3, §4.8).
type Subtask struct {
	ID               string
	ChildTaskID      *uuid.UUID
	Status           SubtaskStatus
	Diff             string
	AttemptCount     int
	MaxAttempts      int
	TargetFiles      []string
	AcceptanceCriteria []string
	DependsOn        []string
}

// CanStart reports whether every dependency of s is completed in the given
// completion set.
func (s *Subtask) CanStart(completed map[string]bool) bool {
	for _, dep := range s.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// MarkInProgress transitions a pending subtask to in_progress.
func (s *Subtask) MarkInProgress() error {
	if s.Status != SubtaskPending {
		return cerr.Newf(cerr.InvalidState, "", false, "subtask %s: cannot start from status %s", s.ID, s.Status)
	}
	s.Status = SubtaskInProgress
	return nil
}

// MarkCompleted transitions an in_progress subtask to completed with its diff.
func (s *Subtask) MarkCompleted(diff string) error {
	if s.Status != SubtaskInProgress {
		return cerr.Newf(cerr.InvalidState, "", false, "subtask %s: cannot complete from status %s", s.ID, s.Status)
	}
	s.Status = SubtaskCompleted
	s.Diff = diff
	return nil
}

// MarkFailedOrRetry increments the subtask's attempt count; if the budget
// is exhausted it sets status=failed, otherwise it resets to pending for
// re-queueing (spec.md §4.8).
func (s *Subtask) MarkFailedOrRetry() {
	s.AttemptCount++
	if s.AttemptCount >= s.MaxAttempts {
		s.Status = SubtaskFailed
		return
	}
	s.Status = SubtaskPending
}

// OrchestrationState is the decomposition state embedded in a parent task
// while it is being broken down into subtasks (spec.md §3).
type OrchestrationState struct {
	Subtasks       []*Subtask
	CurrentSubtask string // empty means none in progress
	Completed      map[string]bool
	AggregatedDiff string
	ExecutionOrder []string
	ParallelGroups [][]string
}

// NewOrchestrationState builds state from an already topologically-sorted
// subtask list (the Decomposer is responsible for producing that order).
func NewOrchestrationState(subtasks []*Subtask, order []string) *OrchestrationState {
	return &OrchestrationState{
		Subtasks:       subtasks,
		Completed:      make(map[string]bool),
		ExecutionOrder: order,
	}
}

// bySubtaskID indexes subtasks for O(1) lookup; built lazily, not cached,
// since subtask lists are small (decomposition targets XS/S subtasks only).
func (o *OrchestrationState) bySubtaskID() map[string]*Subtask {
	idx := make(map[string]*Subtask, len(o.Subtasks))
	for _, s := range o.Subtasks {
		idx[s.ID] = s
	}
	return idx
}

// AllCompleted reports whether every subtask is in status completed.
func (o *OrchestrationState) AllCompleted() bool {
	for _, s := range o.Subtasks {
		if s.Status != SubtaskCompleted {
			return false
		}
	}
	return true
}

// NextPending returns the next pending subtask (in execution order) whose
// dependencies are all completed, or nil if none is ready.
func (o *OrchestrationState) NextPending() *Subtask {
	idx := o.bySubtaskID()
	for _, id := range o.ExecutionOrder {
		s, ok := idx[id]
		if !ok || s.Status != SubtaskPending {
			continue
		}
		if s.CanStart(o.Completed) {
			return s
		}
	}
	return nil
}

// StartSubtask marks s in_progress and records it as the current subtask,
// enforcing invariant 3 in spec.md §8 (current_subtask references an
// existing in_progress subtask or is empty).
func (o *OrchestrationState) StartSubtask(s *Subtask) error {
	if err := s.MarkInProgress(); err != nil {
		return err
	}
	o.CurrentSubtask = s.ID
	return nil
}

// CompleteSubtask marks s completed, clears CurrentSubtask, and records it in
// the completion set used for dependency resolution.
func (o *OrchestrationState) CompleteSubtask(s *Subtask, diff string) error {
	if err := s.MarkCompleted(diff); err != nil {
		return err
	}
	if o.Completed == nil {
		o.Completed = make(map[string]bool)
	}
	o.Completed[s.ID] = true
	if o.CurrentSubtask == s.ID {
		o.CurrentSubtask = ""
	}
	return nil
}

// FailOrRetrySubtask records a subtask failure, clearing CurrentSubtask
// regardless of whether the subtask re-queues or terminally fails.
func (o *OrchestrationState) FailOrRetrySubtask(s *Subtask) {
	s.MarkFailedOrRetry()
	if o.CurrentSubtask == s.ID {
		o.CurrentSubtask = ""
	}
}

// AnyFailed reports whether any subtask has terminally failed.
func (o *OrchestrationState) AnyFailed() bool {
	for _, s := range o.Subtasks {
		if s.Status == SubtaskFailed {
			return true
		}
	}
	return false
}
