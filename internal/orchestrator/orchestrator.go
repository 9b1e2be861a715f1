// Package orchestrator implements the Orchestrator (nervous system) from
// spec.md §4.10: a per-state dispatcher that wires the StateMachine, Gate,
// ModelSelector, MultiAgentRunner/Consensus, AgenticLoop, Decomposer,
// BatchCoordinator, MemorySubsystem, and ObservationBus around the
// version-control host and persistence store. Grounded on the teacher's
// internal/executor.Loop/LoopWithAnalysis (pull the next unit of work,
// dispatch it, persist progress, retry on bounded failure) and on
// randalmurphal-orc's internal/orchestrator.Orchestrator (a struct composing
// a scheduler, a git/vcs client, and a persistence backend behind one
// process(task)-style entry point).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/batch"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/eventbus"
	"github.com/avery-holt/cascade/internal/gate"
	"github.com/avery-holt/cascade/internal/logging"
	"github.com/avery-holt/cascade/internal/memory"
	"github.com/avery-holt/cascade/internal/metrics"
	"github.com/avery-holt/cascade/internal/statemachine"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
	"github.com/avery-holt/cascade/internal/vcs"
)

// Agents bundles the six out-of-scope agent collaborators spec.md §1 treats
// as external, plus the optional variant lists that turn coder/fixer stages
// into a MultiAgentRunner fan-out (spec.md §4.6) when non-empty.
type Agents struct {
	Planner   agent.Planner
	Coder     agent.Coder
	Fixer     agent.Fixer
	Reviewer  agent.Reviewer
	Breakdown agent.Breakdown
	Reflector agent.Reflector

	CoderVariants []agent.Variant
	FixerVariants []agent.Variant
}

// Orchestrator is the per-state dispatcher from spec.md §4.10.
type Orchestrator struct {
	Store   store.Store
	Host    vcs.Host
	Bus     *eventbus.Bus
	Metrics *metrics.Registry
	Memory  *memory.Subsystem
	Batch   *batch.Coordinator
	Exec    *cmdexec.Executor
	Cfg     *config.Config
	Agents  Agents

	inflight inFlightSet
}

// inFlightSet is the process-wide set of in-flight task ids from spec.md
// §5: "acquired on entry and released on exit of process(task);
// re-entrant acquisition returns immediately with no work."
type inFlightSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

func (s *inFlightSet) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[uuid.UUID]struct{})
	}
	if _, held := s.ids[id]; held {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *inFlightSet) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Process implements spec.md §4.10's process(task) algorithm exactly:
// acquire the per-task token, check for terminal status, compute the next
// action, dispatch, persist, release. A nil, nil return means the task was
// already in flight and no work was done this call.
func (o *Orchestrator) Process(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	if !o.inflight.acquire(taskID) {
		return nil, nil
	}
	defer o.inflight.release(taskID)

	t, err := o.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return t, nil
	}
	expectedUpdatedAt := t.UpdatedAt.UnixNano()

	action := statemachine.NextAction(t.Status)
	fromStatus := t.Status
	dispatchStart := time.Now()
	dispatchErr := o.dispatch(ctx, t, action)
	if o.Metrics != nil {
		o.Metrics.PhaseDuration.WithLabelValues(string(action)).Observe(time.Since(dispatchStart).Seconds())
	}

	log := logging.FromContext(ctx).Sugar().Named("orchestrator")
	if dispatchErr != nil {
		o.handleDispatchError(ctx, t, dispatchErr)
	}

	if err := o.Store.UpdateTask(ctx, t, expectedUpdatedAt); err != nil {
		log.Errorw("failed to persist task after dispatch", "task_id", t.ID, "action", action, "error", err)
		return t, err
	}
	if o.Metrics != nil && fromStatus != "" {
		o.Metrics.StateTransitions.WithLabelValues(string(fromStatus), string(t.Status)).Inc()
	}
	return t, dispatchErr
}

// dispatch routes to the handler named by action, per spec.md §4.10's
// "Handlers correspond to actions: Plan, Breakdown, Orchestrate, Code, Test,
// Fix, Review, OpenPR, Wait." Breakdown has no table entry of its own
// (spec.md §4.8 triggers it from within PlanningDone's Code dispatch), so it
// is reached only through handleCode.
func (o *Orchestrator) dispatch(ctx context.Context, t *task.Task, action statemachine.Action) error {
	switch action {
	case statemachine.ActionPlan:
		return o.handlePlan(ctx, t)
	case statemachine.ActionCode:
		return o.handleCode(ctx, t)
	case statemachine.ActionOrchestrate:
		return o.handleOrchestrate(ctx, t)
	case statemachine.ActionTest:
		return o.handleTest(ctx, t)
	case statemachine.ActionFix:
		return o.handleFix(ctx, t)
	case statemachine.ActionReview:
		return o.handleReview(ctx, t)
	case statemachine.ActionOpenPR:
		return o.handleOpenPR(ctx, t)
	case statemachine.ActionWait, statemachine.ActionDone, statemachine.ActionFailedTerminal:
		return nil
	default:
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "no handler registered for action %q", action)
	}
}

// handleDispatchError implements spec.md §7's outer-dispatcher policy: "The
// outer dispatcher catches every uncaught exception from a handler, wraps
// unknown errors into UnknownError (recoverable=false), and calls
// failTask." Handlers that already called failTask themselves leave the
// task in StatusFailed, so this is a no-op for them; it only engages for a
// handler that returned a bare error without failing the task itself.
func (o *Orchestrator) handleDispatchError(ctx context.Context, t *task.Task, err error) {
	if t.Status == task.StatusFailed {
		return
	}
	ce, ok := cerr.AsCascadeError(err)
	if !ok {
		ce = cerr.Wrap(cerr.UnknownError, "unhandled handler error", t.ID.String(), false, err)
	}
	if ce.Recoverable {
		return
	}
	o.failTask(ctx, t, ce.Code, ce.Error(), false)
}

// failTask implements spec.md §4.10/§7's failure path: sets status=Failed,
// records a failure-mode memory entry with the code's avoidance strategy,
// optionally comments on the source issue, and emits Failed. The return
// value is always a non-nil error so handler call sites can `return
// o.failTask(...)` directly.
func (o *Orchestrator) failTask(ctx context.Context, t *task.Task, code cerr.Code, message string, recoverable bool) error {
	t.Fail(string(code), message)

	if o.Memory != nil {
		strategy := cerr.AvoidanceStrategy(code)
		_, _ = o.Memory.LearnOrReinforce(ctx, t.Repo, task.PatternFailure, message, strategy, 0.5)
	}

	if o.Cfg != nil && o.Cfg.CommentOnFailure && o.Host != nil && t.Issue != 0 {
		body := fmt.Sprintf(
			"Cascade stopped working on this issue.\n\ncode: %s\nmessage: %s\nattempts: %d/%d\nrecoverable: %t\nsuggested action: %s",
			code, message, t.AttemptCount, t.MaxAttempts, recoverable, cerr.AvoidanceStrategy(code),
		)
		_ = o.Host.AddComment(ctx, t.Repo, t.Issue, body)
	}

	_ = o.publish(ctx, t, task.EventFailed, "", message, "")
	return cerr.New(code, message, t.ID.String(), recoverable)
}

// recordGate appends a trace event for every gate invocation, per spec.md
// §4.2: "Every gate invocation appends a trace event." Gate names are not
// themselves members of the closed TaskEvent type set (spec.md §3), so the
// trace is carried as structured logging plus the gate-failure counter
// rather than a synthetic event type.
func (o *Orchestrator) recordGate(ctx context.Context, t *task.Task, result gate.Result) {
	log := logging.FromContext(ctx).Sugar().Named("orchestrator")
	log.Infow("gate checked",
		"task_id", t.ID, "gate", result.Gate, "passed", result.Passed,
		"missing", result.Missing, "details", result.Details)
	if o.Metrics != nil && !result.Passed {
		o.Metrics.GateFailures.WithLabelValues(string(result.Gate)).Inc()
	}
}

// publish wraps eventbus.Bus.Publish with the common TaskEvent construction
// every handler needs.
func (o *Orchestrator) publish(ctx context.Context, t *task.Task, eventType task.EventType, agentTag, outputSummary, inputSummary string) error {
	if o.Bus == nil {
		return nil
	}
	e := task.NewEvent(t.ID, eventType).WithAgent(agentTag).WithSummaries(inputSummary, outputSummary)
	return o.Bus.Publish(ctx, e)
}

// repoContext assembles the best-effort repo context files for an agent
// invocation. Failures here are non-fatal per spec.md §5 ("RAG index,
// knowledge graph... the Orchestrator only consults them in a best-effort
// manner and never blocks progress on them"); a Host context failure simply
// yields an empty map.
func (o *Orchestrator) repoContext(ctx context.Context, t *task.Task) (map[string]string, error) {
	if o.Host == nil || len(t.TargetFiles) == 0 {
		return map[string]string{}, nil
	}
	content, err := o.Host.GetFilesContent(ctx, t.Repo, t.TargetFiles, t.Branch)
	if err != nil {
		return map[string]string{}, nil
	}
	return content, nil
}
