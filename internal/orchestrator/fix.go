package orchestrator

import (
	"context"
	"fmt"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/agentic"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/consensus"
	"github.com/avery-holt/cascade/internal/modelselect"
	"github.com/avery-holt/cascade/internal/task"
)

// handleFix implements spec.md §4.7/§4.10's Fix handler, dispatched from
// TestsFailed or VisualTestsFailed. Per spec.md §4.1's transition table,
// Fixing/Reflecting/Replanning never sit "at rest" between Process() calls
// the way CodingDone or TestsPassed do -- the whole fix-or-reflect-and-
// replan sequence runs as one atomic handler call, the same way
// handleBreakdown runs its one-time setup atomically.
func (o *Orchestrator) handleFix(ctx context.Context, t *task.Task) error {
	switch t.Status {
	case task.StatusTestsFailed, task.StatusVisualTestsFailed:
	default:
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "fix handler cannot run from status %s", t.Status)
	}

	if incErr := t.IncrementAttempt(); incErr != nil {
		return o.failTask(ctx, t, cerr.MaxAttemptsReached, "attempt budget exhausted before fix", false)
	}

	if o.Cfg != nil && o.Cfg.UseAgenticLoop {
		return o.runAgenticFix(ctx, t)
	}
	return o.runDirectFix(ctx, t)
}

// runDirectFix is the non-agentic path: a single fixer invocation per
// spec.md §4.10, Fixing -> CodingDone.
func (o *Orchestrator) runDirectFix(ctx context.Context, t *task.Task) error {
	if o.Agents.Fixer == nil {
		return cerr.New(cerr.MissingField, "no fixer agent configured", t.ID.String(), false)
	}
	if err := t.Transition(task.StatusFixing); err != nil {
		return err
	}

	diff, commitMessage, err := o.runFixer(ctx, t)
	if err != nil {
		return err
	}
	return o.applyFixDiff(ctx, t, diff, commitMessage)
}

// runAgenticFix wires internal/agentic.Run behind Reflecting, following
// spec.md §4.7's bounded self-correction loop: a replan signal routes
// through Replanning back into the coding pipeline; otherwise the loop's
// own fix output is applied through Fixing -> CodingDone.
func (o *Orchestrator) runAgenticFix(ctx context.Context, t *task.Task) error {
	if o.Agents.Reflector == nil || o.Agents.Fixer == nil {
		return cerr.New(cerr.MissingField, "agentic loop requires a reflector and fixer agent", t.ID.String(), false)
	}
	if err := t.Transition(task.StatusReflecting); err != nil {
		return err
	}

	contextFiles, err := o.repoContext(ctx, t)
	if err != nil {
		return err
	}
	in := agent.Input{Task: t, ContextFiles: contextFiles}

	params := agentic.Params{
		MaxIterations:       o.agenticMaxIterations(),
		MaxReplans:          o.agenticMaxReplans(),
		ConfidenceThreshold: o.agenticConfidenceThreshold(),
	}

	// Each reflection and replan gets its own event, carrying iteration and
	// confidence (spec.md §4.7), rather than one summary event after the
	// whole loop returns -- a 2-iteration loop must emit exactly two
	// ReflectionComplete events (spec.md §8 scenario 6). hookErr latches the
	// first publish failure so Run still completes its loop body; Run itself
	// never depends on the hook's return value.
	var hookErr error
	hooks := agentic.Hooks{
		OnReflection: func(iteration int, out agent.ReflectionOutput) {
			t.RootCause = out.RootCause
			if hookErr != nil {
				return
			}
			hookErr = o.publishReflection(ctx, t, iteration, out)
		},
		OnReplan: func(iteration int) {
			if hookErr != nil {
				return
			}
			hookErr = o.publishReplan(ctx, t, iteration)
		},
	}

	outcome, err := agentic.Run(ctx, t, o.Agents.Reflector, o.Agents.Fixer, o.Exec, t.Branch, in, params, hooks)
	if err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "agentic loop invocation failed: "+err.Error(), true)
	}
	if hookErr != nil {
		return hookErr
	}

	t.LoopIterations = outcome.Iterations
	t.LoopReplans = outcome.Replans
	t.LastConfidence = outcome.LastConfidence
	t.LoopDuration = outcome.Duration

	if outcome.ReplanTriggered {
		if err := t.Transition(task.StatusReplanning); err != nil {
			return err
		}
		if err := t.Transition(task.StatusCoding); err != nil {
			return err
		}
		return o.runCoding(ctx, t)
	}

	if !outcome.Success {
		return o.failTask(ctx, t, cerr.AgenticLoopExhausted, "agentic loop exhausted: "+outcome.FailureReason, false)
	}

	if err := t.Transition(task.StatusFixing); err != nil {
		return err
	}
	if err := o.applyFixDiff(ctx, t, outcome.Diff, outcome.CommitMessage); err != nil {
		return err
	}
	return o.publish(ctx, t, task.EventAgenticLoopComplete, "reflector", outcome.FailureReason, "")
}

// publishReflection emits one ReflectionComplete event per loop iteration,
// carrying the iteration and confidence spec.md §4.7 requires, following
// publishConsensus's direct-Bus-event pattern for metadata the generic
// o.publish helper has no parameter for.
func (o *Orchestrator) publishReflection(ctx context.Context, t *task.Task, iteration int, out agent.ReflectionOutput) error {
	if o.Bus == nil {
		return nil
	}
	e := task.NewEvent(t.ID, task.EventReflectionComplete).
		WithAgent("reflector").
		WithSummaries("", out.Diagnosis).
		WithMeta("iteration", fmt.Sprintf("%d", iteration)).
		WithMeta("confidence", fmt.Sprintf("%.2f", out.Confidence)).
		WithMeta("root_cause", out.RootCause)
	return o.Bus.Publish(ctx, e)
}

// publishReplan emits a ReplanTriggered event for the iteration that
// identified the root cause as the plan itself (spec.md §4.7).
func (o *Orchestrator) publishReplan(ctx context.Context, t *task.Task, iteration int) error {
	if o.Bus == nil {
		return nil
	}
	e := task.NewEvent(t.ID, task.EventReplanTriggered).
		WithAgent("reflector").
		WithSummaries("", "root cause identified as plan; replan triggered").
		WithMeta("iteration", fmt.Sprintf("%d", iteration))
	return o.Bus.Publish(ctx, e)
}

// runFixer selects a model and invokes either a single Fixer call or, when
// enabled, a MultiAgentRunner fan-out over FixerVariants (spec.md §4.6).
func (o *Orchestrator) runFixer(ctx context.Context, t *task.Task) (diff, commitMessage string, err error) {
	decision, err := modelselect.Select(o.modelSelectionConfig(), modelselect.StageFixer, t.Complexity, t.Effort, t.AttemptCount, t.IsOrchestrated)
	if err != nil {
		ce, _ := cerr.AsCascadeError(err)
		return "", "", o.failTask(ctx, t, ce.Code, ce.Message, ce.Recoverable)
	}

	contextFiles, ctxErr := o.repoContext(ctx, t)
	if ctxErr != nil {
		return "", "", ctxErr
	}
	in := agent.Input{Task: t, ContextFiles: contextFiles, Model: decision.Model}

	if o.Cfg != nil && o.Cfg.MultiAgentFixing && len(o.Agents.FixerVariants) > 1 {
		candidates, runErr := consensus.RunFixers(ctx, o.Agents.Fixer, in, o.Agents.FixerVariants)
		if runErr != nil {
			return "", "", cerr.Wrap(cerr.UnknownError, "multi-agent fixer fan-out failed", t.ID.String(), true, runErr)
		}
		inputs := make([]consensus.HeuristicInputs, len(candidates))
		for i, c := range candidates {
			inputs[i] = heuristicInputsFor(c, t)
		}
		d := consensus.ScoreHeuristic(candidates, inputs)
		if d.Winner.Candidate.Err != nil {
			return "", "", o.failTask(ctx, t, cerr.UnknownError, "every fixer variant failed: "+d.Winner.Candidate.Err.Error(), true)
		}
		if o.Bus != nil {
			if pubErr := o.publishConsensus(ctx, t, d); pubErr != nil {
				return "", "", pubErr
			}
		}
		return d.Winner.Candidate.Diff, d.Winner.Candidate.CommitMessage, nil
	}

	out, runErr := o.Agents.Fixer.Run(ctx, in)
	if runErr != nil {
		return "", "", o.failTask(ctx, t, cerr.UnknownError, "fixer invocation failed: "+runErr.Error(), true)
	}
	return out.Diff, out.CommitMessage, nil
}

// applyFixDiff applies a fix diff, then transitions Fixing -> CodingDone so
// the task re-enters the test/review pipeline from the top. Unlike the coder,
// the fixer agent family has no alternate-patch-format output (agent.FixerOutput
// carries no PatchFormat field), so there is no normalizePatch step here.
func (o *Orchestrator) applyFixDiff(ctx context.Context, t *task.Task, diff, commitMessage string) error {
	t.CurrentDiff = diff
	t.CommitMessage = commitMessage

	if !o.localTestingMode() {
		if err := o.applyDiffToHost(ctx, t); err != nil {
			return err
		}
	}
	if err := t.Transition(task.StatusCodingDone); err != nil {
		return err
	}
	return o.publish(ctx, t, task.EventFixed, "fixer", commitMessage, "")
}

func (o *Orchestrator) agenticMaxIterations() int {
	if o.Cfg == nil || o.Cfg.AgenticLoopMaxIterations == 0 {
		return 5
	}
	return o.Cfg.AgenticLoopMaxIterations
}

func (o *Orchestrator) agenticMaxReplans() int {
	if o.Cfg == nil || o.Cfg.AgenticLoopMaxReplans == 0 {
		return 2
	}
	return o.Cfg.AgenticLoopMaxReplans
}

func (o *Orchestrator) agenticConfidenceThreshold() float64 {
	if o.Cfg == nil || o.Cfg.AgenticLoopConfidenceThreshold == 0 {
		return 0.6
	}
	return o.Cfg.AgenticLoopConfidenceThreshold
}
