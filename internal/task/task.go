// Package task defines the data model shared by every orchestration
// component: Task, Subtask, OrchestrationState, Batch, TaskEvent, and the
// memory records (Observation, Pattern, Archive). Fields are mutated only
// through the methods on this package so the invariants in spec.md §3 stay
// enforced regardless of caller.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/avery-holt/cascade/internal/cerr"
)

// DiffPhase tags a command to run either before or after the coder's diff is
// applied.
type DiffPhase string

const (
	PhaseBeforeDiff DiffPhase = "before_diff"
	PhaseAfterDiff  DiffPhase = "after_diff"
)

// CommandSpec is one entry of a task's optional command list (§4.4).
type CommandSpec struct {
	Name  string
	Args  []string
	Phase DiffPhase
}

// Task is the primary entity: one per issue.
type Task struct {
	ID    uuid.UUID
	Repo  string
	Issue int

	Status Status

	// Planning artifacts
	DefinitionOfDone []string
	Plan             []string
	TargetFiles      []string
	MultiFilePlan    map[string]string
	Commands         []CommandSpec
	Complexity       Complexity
	Effort           Effort

	// Coding artifacts
	Branch        string
	CurrentDiff   string
	CommitMessage string

	// Review/PR
	PRNumber int
	PRURL    string
	PRTitle  string

	// Retry bookkeeping
	AttemptCount int
	MaxAttempts  int
	LastError    string
	RootCause    string

	// Agentic loop metrics
	LoopIterations int
	LoopReplans    int
	LastConfidence float64
	LoopDuration   time.Duration

	// Hierarchy
	ParentTaskID   *uuid.UUID
	SubtaskIndex   int
	IsOrchestrated bool
	Orchestration  *OrchestrationState

	// Batch linkage (a task belongs to at most one active batch, and cannot
	// carry both a batch membership and a direct PR — enforced in SetPRNumber
	// and JoinBatch).
	BatchID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New constructs a Task in its initial New status.
func New(repo string, issue int, maxAttempts int) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New(),
		Repo:        repo,
		Issue:       issue,
		Status:      StatusNew,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NaturalKey returns the (repo, issue) identity pair used for lookups.
func (t *Task) NaturalKey() (string, int) {
	return t.Repo, t.Issue
}

// CanTransitionTo reports whether moving from the task's current status to
// next is a valid edge per the closed transition table.
func (t *Task) CanTransitionTo(next Status) bool {
	return Allowed(t.Status, next)
}

// Transition validates and applies a status change, touching UpdatedAt.
// It never bypasses the closed transition table: invariant 1 in spec.md §8.
func (t *Task) Transition(next Status) error {
	if t.Status.IsTerminal() {
		return cerr.New(cerr.InvalidState, "task is in a terminal state", t.ID.String(), false)
	}
	if !Allowed(t.Status, next) {
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false,
			"invalid transition %s -> %s", t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

// IncrementAttempt bumps attempt_count, enforcing attempt_count <= max_attempts
// (invariant 2 in spec.md §8). Returns cerr.MaxAttemptsReached when the
// increment would exceed the budget; callers must route to Fail in that case.
func (t *Task) IncrementAttempt() error {
	if t.AttemptCount >= t.MaxAttempts {
		return cerr.New(cerr.MaxAttemptsReached, "attempt budget exhausted", t.ID.String(), false)
	}
	t.AttemptCount++
	t.UpdatedAt = time.Now()
	return nil
}

// Fail moves the task to Failed, recording the root cause. Terminal status
// implies no further transitions (invariant in spec.md §3).
func (t *Task) Fail(rootCause, lastError string) {
	t.Status = StatusFailed
	t.RootCause = rootCause
	t.LastError = lastError
	t.UpdatedAt = time.Now()
}

// SetPRNumber records a direct PR and asserts the task is not also a batch
// member (spec.md §3 invariant: "a task cannot be both in a batch and have a
// direct PR").
func (t *Task) SetPRNumber(number int, url string) error {
	if t.BatchID != nil {
		return cerr.New(cerr.InvalidState, "task already belongs to a batch", t.ID.String(), false)
	}
	t.PRNumber = number
	t.PRURL = url
	t.UpdatedAt = time.Now()
	return nil
}

// JoinBatch records batch membership, refusing to overwrite an existing
// direct PR.
func (t *Task) JoinBatch(batchID uuid.UUID) error {
	if t.PRNumber != 0 {
		return cerr.New(cerr.InvalidState, "task already has a direct PR", t.ID.String(), false)
	}
	t.BatchID = &batchID
	t.UpdatedAt = time.Now()
	return nil
}

// LeaveBatch clears batch membership, used on batch-conflict fallback. Per
// DESIGN.md's Open Question decision, AttemptCount is deliberately left
// untouched here.
func (t *Task) LeaveBatch() {
	t.BatchID = nil
	t.UpdatedAt = time.Now()
}
