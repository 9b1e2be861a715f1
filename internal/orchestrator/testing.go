package orchestrator

import (
	"context"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/diffvalidator"
	"github.com/avery-holt/cascade/internal/gate"
	"github.com/avery-holt/cascade/internal/task"
)

// handleTest implements the Test handler. spec.md §4.1's next-action table
// routes both CodingDone and TestsPassed through ActionTest: the first call
// runs the functional test phase (Testing -> TestsPassed/TestsFailed), the
// second runs the visual test phase (VisualTesting ->
// VisualTestsPassed/VisualTestsFailed) once functional tests have already
// passed.
func (o *Orchestrator) handleTest(ctx context.Context, t *task.Task) error {
	switch t.Status {
	case task.StatusCodingDone:
		return o.runFunctionalTests(ctx, t)
	case task.StatusTestsPassed:
		return o.runVisualTests(ctx, t)
	default:
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "test handler cannot run from status %s", t.Status)
	}
}

// runFunctionalTests implements spec.md §4.10's dual local/CI Testing
// handler. Local mode runs the typecheck/lint pipeline directly against the
// applied diff and decides pass/fail without leaving the machine; CI mode
// pushes the diff and polls the host's checks. cmdexec's enumerated Command
// set has no dedicated test-runner member (only typecheck/lint/format), so
// local-mode "tests" are represented by diffvalidator.FullCheck's per-file
// typecheck pass -- documented in DESIGN.md as an Open Question decision.
func (o *Orchestrator) runFunctionalTests(ctx context.Context, t *task.Task) error {
	if err := t.Transition(task.StatusTesting); err != nil {
		return err
	}

	var passed bool
	var detail string
	if o.localTestingMode() {
		result, err := diffvalidator.Validate(ctx, o.Exec, t.Branch, t.CurrentDiff)
		if err != nil {
			return err
		}
		passed = result.Valid
		detail = joinStrings(result.Errors)
	} else {
		if o.Host == nil {
			return cerr.New(cerr.MissingField, "no version-control host configured", t.ID.String(), false)
		}
		if _, err := o.Host.ApplyDiff(ctx, t.Repo, t.Branch, t.CurrentDiff, t.CommitMessage); err != nil {
			return o.failTask(ctx, t, cerr.UnknownError, "failed to push diff for CI checks: "+err.Error(), true)
		}
		check, err := o.Host.WaitForChecks(ctx, t.Repo, t.Branch, o.checkTimeoutMs())
		if err != nil {
			return o.failTask(ctx, t, cerr.Timeout, "waiting for CI checks failed: "+err.Error(), true)
		}
		passed = check.Success
		detail = check.ErrorSummary
	}

	if !passed {
		t.LastError = detail
		if err := t.Transition(task.StatusTestsFailed); err != nil {
			return err
		}
		return o.publish(ctx, t, task.EventTested, "test-runner", detail, "")
	}

	if err := t.Transition(task.StatusTestsPassed); err != nil {
		return err
	}
	result := gate.Check(gate.TestingComplete, t, o.maxDiffLines())
	o.recordGate(ctx, t, result)
	if !result.Passed {
		return o.failTask(ctx, t, cerr.InvalidState, "testing gate failed, missing: "+joinStrings(result.Missing), false)
	}

	if !o.visualTestingEnabled() {
		if err := t.Transition(task.StatusReviewing); err != nil {
			return err
		}
	}
	return o.publish(ctx, t, task.EventTested, "test-runner", "tests passed", "")
}

func (o *Orchestrator) visualTestingEnabled() bool {
	return o.Cfg != nil && o.Cfg.EnableVisualTesting
}

// runVisualTests implements the visual-testing phase. Reusing the same
// local/CI check split as functional tests; spec.md does not define a
// distinct visual check mechanism, so this reuses the host's CI checks in
// both modes (visual regressions are typically a CI-side concern even in
// local-testing mode for functional tests).
func (o *Orchestrator) runVisualTests(ctx context.Context, t *task.Task) error {
	if err := t.Transition(task.StatusVisualTesting); err != nil {
		return err
	}
	if o.Host == nil {
		return cerr.New(cerr.MissingField, "no version-control host configured", t.ID.String(), false)
	}
	check, err := o.Host.WaitForChecks(ctx, t.Repo, t.Branch, o.checkTimeoutMs())
	if err != nil {
		return o.failTask(ctx, t, cerr.Timeout, "waiting for visual checks failed: "+err.Error(), true)
	}
	if !check.Success {
		t.LastError = check.ErrorSummary
		if err := t.Transition(task.StatusVisualTestsFailed); err != nil {
			return err
		}
		return o.publish(ctx, t, task.EventTested, "visual-test-runner", check.ErrorSummary, "")
	}
	if err := t.Transition(task.StatusVisualTestsPassed); err != nil {
		return err
	}
	if err := t.Transition(task.StatusReviewing); err != nil {
		return err
	}
	return o.publish(ctx, t, task.EventTested, "visual-test-runner", "visual tests passed", "")
}

// checkTimeoutMs is the CI-check poll deadline; not part of spec.md §6.3's
// enumerated surface, so it is a fixed constant rather than a config field.
func (o *Orchestrator) checkTimeoutMs() int {
	return 10 * 60 * 1000
}
