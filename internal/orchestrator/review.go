package orchestrator

import (
	"context"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/gate"
	"github.com/avery-holt/cascade/internal/task"
)

// handleReview implements the Review handler: invoke the reviewer agent,
// normalize its verdict, gate on ReviewComplete, and transition to
// ReviewApproved or ReviewRejected. Reviewing -> Reviewing is itself an
// allowed edge (spec.md §4.1), so a resumed task mid-review simply re-runs
// this handler idempotently rather than erroring.
func (o *Orchestrator) handleReview(ctx context.Context, t *task.Task) error {
	if t.Status != task.StatusReviewing {
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "review handler requires status=reviewing, got %s", t.Status)
	}
	if o.Agents.Reviewer == nil {
		return cerr.New(cerr.MissingField, "no reviewer agent configured", t.ID.String(), false)
	}

	contextFiles, err := o.repoContext(ctx, t)
	if err != nil {
		return err
	}
	out, err := o.Agents.Reviewer.Run(ctx, agent.Input{Task: t, ContextFiles: contextFiles})
	if err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "reviewer invocation failed: "+err.Error(), true)
	}
	verdict := agent.NormalizeVerdict(string(out.Verdict))

	switch verdict {
	case agent.VerdictApproved:
		if err := t.Transition(task.StatusReviewApproved); err != nil {
			return err
		}
		result := gate.Check(gate.ReviewComplete, t, o.maxDiffLines())
		o.recordGate(ctx, t, result)
		if !result.Passed {
			return o.failTask(ctx, t, cerr.InvalidState, "review gate failed, missing: "+joinStrings(result.Missing), false)
		}
		return o.publish(ctx, t, task.EventReviewed, "reviewer", "approved: "+out.Comments, "")
	default:
		t.LastError = out.Comments
		if err := t.Transition(task.StatusReviewRejected); err != nil {
			return err
		}
		return o.publish(ctx, t, task.EventReviewed, "reviewer", "rejected: "+out.Comments, "")
	}
}
