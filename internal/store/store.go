// Package store declares the persistence capability the orchestration core
// requires (spec.md §6.2), split into per-entity sub-interfaces the way
// ODSapper-CLIAIMONITOR's MemoryDB interface segregates concerns
// (repo/learnings/context/tasks/decisions/...), composed into one Store.
// Reference implementations live in internal/store/memory (in-process, used
// by tests and internal/testutil) and internal/store/postgres (pgx+sqlx).
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/avery-holt/cascade/internal/task"
)

// TaskStore is the CRUD plus lookup surface for Task.
type TaskStore interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	GetTaskByIssue(ctx context.Context, repo string, issue int) (*task.Task, error)
	GetTasksByStatus(ctx context.Context, status task.Status) ([]*task.Task, error)
	GetRecentTasksByRepo(ctx context.Context, repo string, limit int) ([]*task.Task, error)
	// UpdateTask persists t using optimistic locking on UpdatedAt (spec.md
	// §5): implementations must reject the write (ErrStaleWrite) if the
	// stored row's updated_at has moved since expectedUpdatedAt.
	UpdateTask(ctx context.Context, t *task.Task, expectedUpdatedAt int64) error

	InitializeOrchestration(ctx context.Context, taskID uuid.UUID, state *task.OrchestrationState) error
	GetOrchestrationState(ctx context.Context, taskID uuid.UUID) (*task.OrchestrationState, error)
	UpdateSubtaskStatus(ctx context.Context, taskID uuid.UUID, subtaskID string, patch SubtaskPatch) error
}

// SubtaskPatch carries the fields an UpdateSubtaskStatus call may change.
type SubtaskPatch struct {
	Status       *task.SubtaskStatus
	Diff         *string
	AttemptCount *int
}

// EventStore is the append-only TaskEvent log.
type EventStore interface {
	CreateTaskEvent(ctx context.Context, e *task.TaskEvent) error
	GetTaskEvents(ctx context.Context, taskID uuid.UUID) ([]*task.TaskEvent, error)
	GetRecentConsensusDecisions(ctx context.Context, repo string, limit int) ([]*task.TaskEvent, error)
}

// BatchStore is the CRUD plus membership surface for Batch.
type BatchStore interface {
	CreateBatch(ctx context.Context, b *task.Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*task.Batch, error)
	UpdateBatch(ctx context.Context, b *task.Batch) error
	GetPendingBatches(ctx context.Context, repo string) ([]*task.Batch, error)

	GetTasksByBatch(ctx context.Context, batchID uuid.UUID) ([]*task.Task, error)
	GetBatchByTask(ctx context.Context, taskID uuid.UUID) (*task.Batch, error)
	AddTaskToBatch(ctx context.Context, taskID, batchID uuid.UUID) error
	RemoveTaskFromBatch(ctx context.Context, taskID, batchID uuid.UUID) error
}

// MemoryStore is the CRUD surface for Observation, Pattern, and Archive.
type MemoryStore interface {
	CreateObservation(ctx context.Context, o *task.Observation) error
	GetObservations(ctx context.Context, taskID uuid.UUID) ([]*task.Observation, error)

	UpsertPattern(ctx context.Context, p *task.Pattern) error
	GetPatterns(ctx context.Context, repo string, kind task.PatternKind) ([]*task.Pattern, error)

	CreateArchive(ctx context.Context, a *task.Archive) error
	GetArchives(ctx context.Context, repo string) ([]*task.Archive, error)
}

// ModelConfigStore reads the stage x complexity x effort model table
// persisted alongside repo-specific overrides.
type ModelConfigStore interface {
	GetModelConfigs(ctx context.Context, repo string) (map[string]string, error)
}

// Store composes every sub-interface spec.md §6.2 requires.
type Store interface {
	TaskStore
	EventStore
	BatchStore
	MemoryStore
	ModelConfigStore
}

// Locker serializes batch-pending-set writes per repo (spec.md §5: "Batch
// pending set: writes serialized per repo to prevent double-membership").
type Locker interface {
	// Lock blocks until the named lock is acquired or ctx is done, returning
	// an unlock function.
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// ModelConfigCache is the process-wide model-config cache described in
// spec.md §5: refreshed every 60s or on demand, reads return a
// consistent copy taken under a shared read lock (writes only in the
// refresh path).
type ModelConfigCache interface {
	Snapshot() map[string]string
	Refresh(ctx context.Context) error
}

// ErrStaleWrite is returned by UpdateTask when the optimistic-lock check
// fails because an external actor (e.g. a webhook) mutated the task
// concurrently (spec.md §5).
var ErrStaleWrite = staleWriteError{}

type staleWriteError struct{}

func (staleWriteError) Error() string { return "stale write: task was modified concurrently" }
