// Package scheduler implements the TaskScheduler/Runner from spec.md §4.11:
// advancing a single task through repeated internal/orchestrator.Process
// calls up to a step or wall-clock budget, running many distinct tasks in
// parallel (bounded concurrency, one in-flight advancement per task per
// spec.md §5), and the background stale-task sweep from spec.md §6.4.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/eventbus"
	"github.com/avery-holt/cascade/internal/orchestrator"
	"github.com/avery-holt/cascade/internal/statemachine"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// MaxConcurrentTasks bounds how many distinct tasks Runner.RunParallel
// advances at once, mirroring consensus.MaxConcurrency's fixed-width
// semaphore pattern for a different fan-out.
const MaxConcurrentTasks = 8

// Runner advances tasks through the Orchestrator, one tick per call to
// Process, honoring a per-advancement step and wall-clock budget.
type Runner struct {
	Orch  *orchestrator.Orchestrator
	Store store.TaskStore
	Bus   *eventbus.Bus
	Cfg   *config.Config
}

// New builds a Runner.
func New(orch *orchestrator.Orchestrator, s store.TaskStore, bus *eventbus.Bus, cfg *config.Config) *Runner {
	return &Runner{Orch: orch, Store: s, Bus: bus, Cfg: cfg}
}

// atRest reports whether status needs no further ticking this cycle: a
// terminal status, or one whose next action is ActionWait (spec.md §4.11:
// "until it reaches a waiting/terminal state").
func atRest(status task.Status) bool {
	if status.IsTerminal() {
		return true
	}
	return statemachine.NextAction(status) == statemachine.ActionWait
}

// Advance ticks taskID's Process loop until it reaches a waiting/terminal
// state, maxSteps ticks have run, or maxDuration has elapsed — whichever
// comes first (spec.md §4.11). Returns the task's final persisted state.
func (r *Runner) Advance(ctx context.Context, taskID uuid.UUID, maxSteps int, maxDuration time.Duration) (*task.Task, error) {
	deadline := time.Now().Add(maxDuration)
	var last *task.Task

	for step := 0; step < maxSteps; step++ {
		if maxDuration > 0 && time.Now().After(deadline) {
			break
		}
		t, err := r.Orch.Process(ctx, taskID)
		if err != nil {
			return t, err
		}
		last = t
		if atRest(t.Status) {
			break
		}
	}
	if last == nil {
		return r.Store.GetTask(ctx, taskID)
	}
	return last, nil
}

// RunParallel advances every id in taskIDs concurrently, bounded to
// MaxConcurrentTasks in flight at once; distinct tasks never contend
// (internal/orchestrator's in-flight set only serializes re-entrant
// advancement of the *same* task, per spec.md §5). A single task's error
// does not cancel the others — each result is reported independently.
func (r *Runner) RunParallel(ctx context.Context, taskIDs []uuid.UUID, maxSteps int, maxDuration time.Duration) []Result {
	results := make([]Result, len(taskIDs))
	sem := semaphore.NewWeighted(MaxConcurrentTasks)
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range taskIDs {
		i, id := i, id
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = Result{TaskID: id, Err: err}
				return nil
			}
			defer sem.Release(1)

			t, err := r.Advance(gctx, id, maxSteps, maxDuration)
			results[i] = Result{TaskID: id, Task: t, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Result is one task's outcome from a RunParallel batch.
type Result struct {
	TaskID uuid.UUID
	Task   *task.Task
	Err    error
}

// staleRetryBudget is the additional attempt allowance the stale sweep
// grants beyond MaxAttempts before giving up and failing the task outright
// (spec.md §6.4: "attempt_count < max_attempts + retry_budget"). spec.md
// never names this budget's size, so it is fixed at one extra full
// MaxAttempts cycle -- recorded as an Open Question decision in DESIGN.md.
func (r *Runner) staleRetryBudget() int {
	if r.Cfg == nil {
		return 0
	}
	return r.Cfg.MaxAttempts
}

// StaleSweep implements spec.md §6.4: find every task in an intermediate
// status whose updated_at is older than StaleTaskHours, and either reset it
// to New for a fresh planning pass (if it still has retry budget) or mark
// it Failed. Returns the count of tasks swept.
func (r *Runner) StaleSweep(ctx context.Context) (int, error) {
	staleHours := 24
	if r.Cfg != nil && r.Cfg.StaleTaskHours > 0 {
		staleHours = r.Cfg.StaleTaskHours
	}
	cutoff := time.Now().Add(-time.Duration(staleHours) * time.Hour)

	swept := 0
	for _, status := range task.IntermediateStates() {
		tasks, err := r.Store.GetTasksByStatus(ctx, status)
		if err != nil {
			return swept, err
		}
		for _, t := range tasks {
			if !t.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := r.sweepOne(ctx, t); err != nil {
				return swept, err
			}
			swept++
		}
	}
	return swept, nil
}

func (r *Runner) sweepOne(ctx context.Context, t *task.Task) error {
	expected := t.UpdatedAt.UnixNano()
	maxAttempts := 3
	if r.Cfg != nil && r.Cfg.MaxAttempts > 0 {
		maxAttempts = r.Cfg.MaxAttempts
	}
	budget := maxAttempts + r.staleRetryBudget()

	if t.AttemptCount < budget {
		reason := fmt.Sprintf("stale task reset after exceeding %dh with no progress", r.staleHours())
		t.Status = task.StatusNew
		t.AttemptCount++
		t.LastError = reason
		t.UpdatedAt = time.Now()
		if err := r.Store.UpdateTask(ctx, t, expected); err != nil {
			return err
		}
		return r.publishStale(ctx, t, task.EventStaleReset, reason)
	}

	reason := fmt.Sprintf("stale task failed: exceeded attempt budget (%d) after exceeding %dh with no progress", budget, r.staleHours())
	t.Status = task.StatusFailed
	t.LastError = reason
	t.UpdatedAt = time.Now()
	if err := r.Store.UpdateTask(ctx, t, expected); err != nil {
		return err
	}
	return r.publishStale(ctx, t, task.EventFailed, reason)
}

func (r *Runner) staleHours() int {
	if r.Cfg != nil && r.Cfg.StaleTaskHours > 0 {
		return r.Cfg.StaleTaskHours
	}
	return 24
}

func (r *Runner) publishStale(ctx context.Context, t *task.Task, typ task.EventType, reason string) error {
	if r.Bus == nil {
		return nil
	}
	e := task.NewEvent(t.ID, typ).WithAgent("scheduler").WithSummaries("", reason)
	if err := r.Bus.Publish(ctx, e); err != nil {
		ce, ok := cerr.AsCascadeError(err)
		if ok && !ce.Recoverable {
			return err
		}
	}
	return nil
}
