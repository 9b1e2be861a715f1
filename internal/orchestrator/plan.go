package orchestrator

import (
	"context"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/decompose"
	"github.com/avery-holt/cascade/internal/gate"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// handlePlan implements the Plan handler: New -> Planning -> PlanningDone,
// gated by PlanningComplete (spec.md §4.2's required-artifact table).
func (o *Orchestrator) handlePlan(ctx context.Context, t *task.Task) error {
	if t.Status != task.StatusNew {
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "plan handler requires status=new, got %s", t.Status)
	}
	if o.Agents.Planner == nil {
		return cerr.New(cerr.MissingField, "no planner agent configured", t.ID.String(), false)
	}
	if err := t.Transition(task.StatusPlanning); err != nil {
		return err
	}

	contextFiles, err := o.repoContext(ctx, t)
	if err != nil {
		return err
	}

	out, err := o.Agents.Planner.Run(ctx, agent.Input{Task: t, ContextFiles: contextFiles})
	if err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "planner invocation failed: "+err.Error(), true)
	}

	t.DefinitionOfDone = out.DefinitionOfDone
	t.Plan = out.Plan
	t.TargetFiles = out.TargetFiles
	t.Complexity = out.Complexity
	t.Effort = out.Effort
	t.Commands = out.Commands

	if t.Complexity == task.ComplexityXL {
		return o.failTask(ctx, t, cerr.ComplexityTooHigh, "planner returned complexity XL with no decomposition path available", false)
	}

	result := gate.Check(gate.PlanningComplete, t, o.maxDiffLines())
	o.recordGate(ctx, t, result)
	if !result.Passed {
		return o.failTask(ctx, t, cerr.MissingField, "planning gate failed, missing: "+joinStrings(result.Missing), false)
	}

	if err := t.Transition(task.StatusPlanningDone); err != nil {
		return err
	}
	summary := ""
	if len(out.Plan) > 0 {
		summary = out.Plan[0]
	}
	return o.publish(ctx, t, task.EventPlanned, "planner", summary, "")
}

// handleCode implements the Code handler. From PlanningDone it branches
// into §4.8's Decomposer trigger ("complexity in {M,L} and no existing
// OrchestrationState") before falling through to the ordinary coding
// pipeline; from ReviewRejected it always runs the coding pipeline.
func (o *Orchestrator) handleCode(ctx context.Context, t *task.Task) error {
	switch t.Status {
	case task.StatusPlanningDone:
		if (t.Complexity == task.ComplexityM || t.Complexity == task.ComplexityL) && t.Orchestration == nil {
			return o.handleBreakdown(ctx, t)
		}
		return o.runCoding(ctx, t)
	case task.StatusReviewRejected:
		return o.runCoding(ctx, t)
	default:
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "code handler cannot run from status %s", t.Status)
	}
}

// handleBreakdown runs the Decomposer trigger from spec.md §4.8: invoke the
// breakdown agent, derive a topological execution order, and persist the
// resulting OrchestrationState. Unlike the tick-granular Orchestrate
// handler, this setup sequence is atomic within one dispatch (spec.md §4.8
// only promises per-tick granularity for subtask processing, not for the
// one-time breakdown trigger itself).
func (o *Orchestrator) handleBreakdown(ctx context.Context, t *task.Task) error {
	if o.Agents.Breakdown == nil {
		return cerr.New(cerr.MissingField, "no breakdown agent configured", t.ID.String(), false)
	}
	if err := t.Transition(task.StatusBreakingDown); err != nil {
		return err
	}

	contextFiles, err := o.repoContext(ctx, t)
	if err != nil {
		return err
	}
	out, err := o.Agents.Breakdown.Run(ctx, agent.Input{Task: t, ContextFiles: contextFiles})
	if err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "breakdown invocation failed: "+err.Error(), true)
	}

	maxSubtaskAttempts := 2
	if o.Cfg != nil {
		maxSubtaskAttempts = o.Cfg.MaxSubtaskAttempts
	}
	state, err := decompose.Decompose(out, maxSubtaskAttempts)
	if err != nil {
		return o.failTask(ctx, t, cerr.SubtaskFailed, "failed to derive subtask execution order: "+err.Error(), false)
	}
	t.Orchestration = state

	if err := t.Transition(task.StatusBreakdownDone); err != nil {
		return err
	}
	if err := o.Store.InitializeOrchestration(ctx, t.ID, state); err != nil {
		return err
	}
	if err := t.Transition(task.StatusOrchestrating); err != nil {
		return err
	}
	return o.publish(ctx, t, task.EventPlanned, "breakdown", "", "")
}

// handleOrchestrate runs exactly one SubtaskManager tick per dispatch,
// preserving spec.md §4.8's "tick granularity guarantees external
// visibility; no single tick processes all subtasks."
func (o *Orchestrator) handleOrchestrate(ctx context.Context, t *task.Task) error {
	if t.Status != task.StatusOrchestrating {
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "orchestrate handler requires status=orchestrating, got %s", t.Status)
	}
	if t.Orchestration == nil {
		return cerr.New(cerr.InvalidState, "orchestrating task has no orchestration state", t.ID.String(), false)
	}
	if o.Agents.Coder == nil {
		return cerr.New(cerr.MissingField, "no coder agent configured", t.ID.String(), false)
	}

	contextFiles, err := o.repoContext(ctx, t)
	if err != nil {
		return err
	}
	result, err := decompose.Tick(ctx, t, o.Agents.Coder, contextFiles)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case decompose.TickSubtaskFailed:
		// decompose.Tick already called t.Fail when the subtask's retry
		// budget was exhausted; nothing further to persist here beyond the
		// task itself, which Process() persists on return.
		return nil
	case decompose.TickAggregated:
		return o.applyAggregatedDiff(ctx, t)
	default:
		if result.SubtaskID != "" {
			if err := o.Store.UpdateSubtaskStatus(ctx, t.ID, result.SubtaskID, subtaskPatchFor(t, result.SubtaskID)); err != nil {
				return err
			}
		}
		return nil
	}
}

// applyAggregatedDiff ensures a branch exists, applies the concatenated
// subtask diff, and transitions the parent to CodingDone so it runs its own
// test/review phases (spec.md §4.8 rule 1).
func (o *Orchestrator) applyAggregatedDiff(ctx context.Context, t *task.Task) error {
	if o.Host == nil {
		return cerr.New(cerr.MissingField, "no version-control host configured", t.ID.String(), false)
	}
	if err := o.Host.EnsureBranchExists(ctx, t.Repo, t.Branch); err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "failed to ensure branch exists for aggregated diff: "+err.Error(), true)
	}
	if _, err := o.Host.ApplyDiff(ctx, t.Repo, t.Branch, t.CurrentDiff, t.CommitMessage); err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "failed to apply aggregated diff: "+err.Error(), true)
	}
	if err := t.Transition(task.StatusCodingDone); err != nil {
		return err
	}
	return o.publish(ctx, t, task.EventCoded, "subtask-manager", t.CommitMessage, "")
}

// subtaskPatchFor builds the store.SubtaskPatch reflecting subtaskID's
// current in-memory state after a tick, for persistence.
func subtaskPatchFor(t *task.Task, subtaskID string) store.SubtaskPatch {
	if t.Orchestration == nil {
		return store.SubtaskPatch{}
	}
	for _, s := range t.Orchestration.Subtasks {
		if s.ID == subtaskID {
			status := s.Status
			diff := s.Diff
			attempts := s.AttemptCount
			return store.SubtaskPatch{Status: &status, Diff: &diff, AttemptCount: &attempts}
		}
	}
	return store.SubtaskPatch{}
}

func (o *Orchestrator) maxDiffLines() int {
	if o.Cfg == nil || o.Cfg.MaxDiffLines == 0 {
		return 700
	}
	return o.Cfg.MaxDiffLines
}

func joinStrings(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
