package orchestrator

import (
	"context"
	"fmt"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/consensus"
	"github.com/avery-holt/cascade/internal/diffvalidator"
	"github.com/avery-holt/cascade/internal/gate"
	"github.com/avery-holt/cascade/internal/modelselect"
	"github.com/avery-holt/cascade/internal/task"
)

// runCoding implements spec.md §4.10's Coding handler pipeline: select
// model(s) -> fan out if multi-agent -> normalize patch format -> enforce
// max diff lines -> run before_diff commands -> validate -> apply (or defer
// under local-testing mode) -> run after_diff commands -> CodingDone.
//
// Coding has no nextAction table entry (spec.md §4.1): like BreakingDown, it
// never sits at rest between Process() calls. So an invalid diff discovered
// before the task has ever reached CodingDone is retried in place, inline,
// rather than returned to the dispatcher — there is no allowed edge back out
// of Coding except CodingDone or Failed, so parking the task mid-pipeline
// would strand it with no reachable next action.
func (o *Orchestrator) runCoding(ctx context.Context, t *task.Task) error {
	if o.Agents.Coder == nil {
		return cerr.New(cerr.MissingField, "no coder agent configured", t.ID.String(), false)
	}
	if t.Status != task.StatusCoding {
		if err := t.Transition(task.StatusCoding); err != nil {
			return err
		}
	}

	for {
		err := o.codingAttempt(ctx, t)
		if err == nil {
			if err := t.Transition(task.StatusCodingDone); err != nil {
				return err
			}
			return o.publish(ctx, t, task.EventCoded, "coder", t.CommitMessage, "")
		}

		if t.Status.IsTerminal() {
			return err
		}
		ce, ok := cerr.AsCascadeError(err)
		if !ok || !ce.Recoverable {
			return err
		}
		if incErr := t.IncrementAttempt(); incErr != nil {
			return o.failTask(ctx, t, cerr.MaxAttemptsReached, "attempt budget exhausted: "+ce.Message, false)
		}
		t.LastError = ce.Message
	}
}

// codingAttempt is one pass of the coder-invoke/normalize/gate/validate/apply
// pipeline; its caller decides whether a recoverable failure is retried.
func (o *Orchestrator) codingAttempt(ctx context.Context, t *task.Task) error {
	diff, commitMessage, patchFormat, consensusDecision, err := o.runCoder(ctx, t)
	if err != nil {
		return err
	}
	if o.Bus != nil && consensusDecision != nil {
		if err := o.publishConsensus(ctx, t, *consensusDecision); err != nil {
			return err
		}
	}

	normalized, err := normalizePatch(ctx, o.Host, t.Repo, t.Branch, patchFormat, diff)
	if err != nil {
		return cerr.Wrap(cerr.InvalidDiff, "diff normalization failed", t.ID.String(), true, err)
	}
	t.CurrentDiff = normalized
	t.CommitMessage = commitMessage
	if t.Branch == "" {
		t.Branch = fmt.Sprintf("cascade/issue-%d", t.Issue)
	}

	result := gate.Check(gate.CodingComplete, t, o.maxDiffLines())
	o.recordGate(ctx, t, result)
	if !result.Passed {
		code := cerr.MissingField
		for _, m := range result.Missing {
			if m == "lineCount" {
				code = cerr.DiffTooLarge
				break
			}
		}
		return cerr.Newf(code, t.ID.String(), true, "coding gate failed, missing: %s", joinStrings(result.Missing))
	}

	if err := o.runCommands(ctx, t, task.PhaseBeforeDiff); err != nil {
		return err
	}

	workDir := t.Branch
	validation, err := diffvalidator.Validate(ctx, o.Exec, workDir, t.CurrentDiff)
	if err != nil {
		return err
	}
	if !validation.Valid {
		return cerr.Newf(cerr.InvalidDiff, t.ID.String(), true, "diff validation failed: %s", joinStrings(validation.Errors))
	}

	if !o.localTestingMode() {
		if err := o.applyDiffToHost(ctx, t); err != nil {
			return err
		}
	}

	return o.runCommands(ctx, t, task.PhaseAfterDiff)
}

// runCoder selects the model(s) for this attempt and invokes either a
// single coder call or, when CoderVariants names more than one variant and
// the config enables it, a MultiAgentRunner fan-out scored by the heuristic
// strategy (spec.md §4.6).
func (o *Orchestrator) runCoder(ctx context.Context, t *task.Task) (diff, commitMessage, patchFormat string, decision *consensus.Decision, err error) {
	decisionModel, err := modelselect.Select(o.modelSelectionConfig(), modelselect.StageCoder, t.Complexity, t.Effort, t.AttemptCount, t.IsOrchestrated)
	if err != nil {
		ce, _ := cerr.AsCascadeError(err)
		return "", "", "", nil, o.failTask(ctx, t, ce.Code, ce.Message, ce.Recoverable)
	}

	contextFiles, ctxErr := o.repoContext(ctx, t)
	if ctxErr != nil {
		return "", "", "", nil, ctxErr
	}
	in := agent.Input{Task: t, ContextFiles: contextFiles, Model: decisionModel.Model}

	if o.Cfg != nil && o.Cfg.MultiAgentCoding && len(o.Agents.CoderVariants) > 1 {
		candidates, runErr := consensus.RunCoders(ctx, o.Agents.Coder, in, o.Agents.CoderVariants)
		if runErr != nil {
			return "", "", "", nil, cerr.Wrap(cerr.UnknownError, "multi-agent coder fan-out failed", t.ID.String(), true, runErr)
		}
		inputs := make([]consensus.HeuristicInputs, len(candidates))
		for i, c := range candidates {
			inputs[i] = heuristicInputsFor(c, t)
		}
		d := consensus.ScoreHeuristic(candidates, inputs)
		if d.Winner.Candidate.Err != nil {
			return "", "", "", nil, o.failTask(ctx, t, cerr.UnknownError, "every coder variant failed: "+d.Winner.Candidate.Err.Error(), true)
		}
		return d.Winner.Candidate.Diff, d.Winner.Candidate.CommitMessage, "unified", &d, nil
	}

	out, runErr := o.Agents.Coder.Run(ctx, in)
	if runErr != nil {
		return "", "", "", nil, o.failTask(ctx, t, cerr.UnknownError, "coder invocation failed: "+runErr.Error(), true)
	}
	return out.Diff, out.CommitMessage, out.PatchFormat, nil, nil
}

// heuristicInputsFor scores a candidate by quick-checking its diff and
// comparing its size against the plan's declared target-file count, per
// spec.md §4.6's "diff size normalised against plan expectations."
func heuristicInputsFor(c consensus.Candidate, t *task.Task) consensus.HeuristicInputs {
	if c.Err != nil {
		return consensus.HeuristicInputs{}
	}
	quick := diffvalidator.QuickCheck(c.Diff)
	expected := len(t.TargetFiles) * 40
	return consensus.HeuristicInputs{
		ValidationPassed:   quick.Valid,
		SyntacticallyValid: quick.Valid,
		DoDCoverage:        1.0,
		DiffLines:          diffLineCount(c.Diff),
		ExpectedDiffLines:  expected,
	}
}

func diffLineCount(diff string) int {
	count := 0
	for _, c := range diff {
		if c == '\n' {
			count++
		}
	}
	return count
}

func (o *Orchestrator) publishConsensus(ctx context.Context, t *task.Task, d consensus.Decision) error {
	if o.Metrics != nil {
		o.Metrics.ConsensusDecisions.WithLabelValues(string(d.Strategy)).Inc()
	}
	e := task.NewEvent(t.ID, task.EventConsensusDecision).
		WithAgent(d.Winner.Candidate.Model).
		WithSummaries("", fmt.Sprintf("winner=%s losers=%d", d.Winner.Candidate.Model, len(d.Losers))).
		WithMeta("strategy", string(d.Strategy))
	return o.Bus.Publish(ctx, e)
}

// runCommands executes t.Commands filtered to phase via the CommandExecutor,
// aborting the phase on the first failure (spec.md §4.4: "Any failure
// aborts the phase with a recoverable error").
func (o *Orchestrator) runCommands(ctx context.Context, t *task.Task, phase task.DiffPhase) error {
	if o.Exec == nil {
		return nil
	}
	for _, c := range t.Commands {
		if c.Phase != phase {
			continue
		}
		out, err := o.Exec.Run(ctx, cmdexec.Spec{
			Command: cmdexec.Command(c.Name),
			WorkDir: t.Branch,
			Phase:   cmdexec.Phase(phase),
		})
		if err != nil {
			return cerr.Wrap(cerr.CommandFailed, "command invocation failed", t.ID.String(), true, err)
		}
		if !out.Success {
			return cerr.Newf(cerr.CommandFailed, t.ID.String(), true, "%s failed (exit %d): %s", c.Name, out.ExitCode, out.StderrTail)
		}
	}
	return nil
}

func (o *Orchestrator) applyDiffToHost(ctx context.Context, t *task.Task) error {
	if o.Host == nil {
		return cerr.New(cerr.MissingField, "no version-control host configured", t.ID.String(), false)
	}
	if err := o.Host.EnsureBranchExists(ctx, t.Repo, t.Branch); err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "failed to ensure branch exists: "+err.Error(), true)
	}
	if _, err := o.Host.ApplyDiff(ctx, t.Repo, t.Branch, t.CurrentDiff, t.CommitMessage); err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "failed to apply diff: "+err.Error(), true)
	}
	return nil
}

func (o *Orchestrator) localTestingMode() bool {
	return o.Cfg != nil && o.Cfg.LocalTestingMode
}

func (o *Orchestrator) modelSelectionConfig() config.ModelSelectionConfig {
	if o.Cfg == nil {
		return config.DefaultModelSelection()
	}
	return o.Cfg.ModelSelection
}
