package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/avery-holt/cascade/internal/batch"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/task"
	"github.com/avery-holt/cascade/internal/vcs"
)

// handleOpenPR implements spec.md §4.9's OpenPR handler: decide whether t
// joins a batch or opens its own PR, and for a batch that just became ready,
// combine its members' diffs into one PR (falling every member back to an
// individual PR on conflict).
func (o *Orchestrator) handleOpenPR(ctx context.Context, t *task.Task) error {
	if t.Status != task.StatusReviewApproved {
		return cerr.Newf(cerr.InvalidState, t.ID.String(), false, "open_pr handler requires status=review_approved, got %s", t.Status)
	}
	if o.Host == nil {
		return cerr.New(cerr.MissingField, "no version-control host configured", t.ID.String(), false)
	}

	if o.Batch == nil || o.Cfg == nil || !o.Cfg.EnableBatchMerge {
		return o.openIndividualPR(ctx, t)
	}

	siblings, err := o.approvedSiblings(ctx, t)
	if err != nil {
		return err
	}
	outcome, b, err := o.Batch.Join(ctx, t, siblings, o.batchLimits())
	if err != nil {
		return err
	}

	switch outcome {
	case batch.OutcomeIndividual:
		return o.openIndividualPR(ctx, t)
	default:
		if b == nil {
			return nil
		}
		return o.maybeProcessBatch(ctx, b)
	}
}

// approvedSiblings returns every other ReviewApproved task in t's repo, the
// candidate pool batch.Join's "form new" step searches for file overlap.
func (o *Orchestrator) approvedSiblings(ctx context.Context, t *task.Task) ([]*task.Task, error) {
	candidates, err := o.Store.GetTasksByStatus(ctx, task.StatusReviewApproved)
	if err != nil {
		return nil, err
	}
	out := make([]*task.Task, 0, len(candidates))
	for _, c := range candidates {
		if c.Repo == t.Repo && c.ID != t.ID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (o *Orchestrator) batchLimits() batch.Limits {
	limits := batch.Limits{MinBatchSize: 2, MaxBatchSize: 10, Timeout: 30 * time.Minute}
	if o.Cfg == nil {
		return limits
	}
	if o.Cfg.MinBatchSize > 0 {
		limits.MinBatchSize = o.Cfg.MinBatchSize
	}
	if o.Cfg.MaxBatchSize > 0 {
		limits.MaxBatchSize = o.Cfg.MaxBatchSize
	}
	if o.Cfg.BatchTimeoutMinutes > 0 {
		limits.Timeout = time.Duration(o.Cfg.BatchTimeoutMinutes) * time.Minute
	}
	return limits
}

// maybeProcessBatch checks readiness and, if ready, combines the batch's
// members into one PR (or falls every member back to an individual PR on
// conflict). A not-yet-ready batch is left untouched; the next member to
// reach OpenPR (or a periodic sweep outside this package) will re-check.
func (o *Orchestrator) maybeProcessBatch(ctx context.Context, b *task.Batch) error {
	members, err := o.Store.GetTasksByBatch(ctx, b.ID)
	if err != nil {
		return err
	}
	if !batch.Ready(b, members, o.batchLimits()) {
		return nil
	}
	b.MarkProcessing()

	memberDiffs := make([]batch.MemberDiff, len(members))
	for i, m := range members {
		memberDiffs[i] = batch.MemberDiff{TaskID: m.ID, Issue: m.Issue, Diff: m.CurrentDiff}
	}
	result, err := batch.Combine(b.Repo, memberDiffs)
	if err != nil {
		return err
	}
	if len(result.Conflicts) > 0 {
		return o.fallBackBatchToIndividualPRs(ctx, b, members)
	}
	return o.openBatchPR(ctx, b, members, result)
}

// fallBackBatchToIndividualPRs implements spec.md §4.9's conflict fallback:
// every member leaves the batch and opens its own PR instead.
func (o *Orchestrator) fallBackBatchToIndividualPRs(ctx context.Context, b *task.Batch, members []*task.Task) error {
	b.MarkFailed()
	if err := o.Store.UpdateBatch(ctx, b); err != nil {
		return err
	}
	for _, m := range members {
		m.LeaveBatch()
		if err := m.Transition(task.StatusReviewApproved); err != nil {
			continue
		}
		expected := m.UpdatedAt.UnixNano()
		if err := o.openIndividualPR(ctx, m); err != nil {
			continue
		}
		_ = o.Store.UpdateTask(ctx, m, expected)
		_ = o.publish(ctx, m, task.EventConflictDetected, "batch-coordinator", "batch combine conflict; falling back to individual PR", "")
	}
	return nil
}

// openBatchPR opens one PR covering every member's combined diff, setting
// each member's PR linkage directly (SetPRNumber refuses this because a
// batch member already carries BatchID, by design -- this is the shared
// batch PR, not a disallowed second direct PR).
func (o *Orchestrator) openBatchPR(ctx context.Context, b *task.Batch, members []*task.Task, result batch.Result) error {
	branch := fmt.Sprintf("cascade/batch-%s", b.ID.String())
	if err := o.Host.EnsureBranchExists(ctx, b.Repo, branch); err != nil {
		return err
	}
	if _, err := o.Host.ApplyDiff(ctx, b.Repo, branch, result.Diff, result.CommitMessage); err != nil {
		return err
	}
	pr, err := o.Host.CreatePR(ctx, b.Repo, vcs.PRRequest{Title: result.Title, Body: result.Body, Head: branch, Base: b.BaseBranch})
	if err != nil {
		return err
	}
	b.MarkCompleted(pr.Number, pr.URL)
	if err := o.Store.UpdateBatch(ctx, b); err != nil {
		return err
	}

	for _, m := range members {
		m.PRNumber = pr.Number
		m.PRURL = pr.URL
		m.Branch = branch
		expected := m.UpdatedAt.UnixNano()
		if err := m.Transition(task.StatusPrCreated); err != nil {
			continue
		}
		_ = o.Store.UpdateTask(ctx, m, expected)
		_ = o.publish(ctx, m, task.EventBatchPrCreated, "batch-coordinator", pr.URL, "")
	}
	return nil
}

// openIndividualPR is spec.md §4.9's fallback path for a task that is not
// part of any batch: open its own PR directly.
func (o *Orchestrator) openIndividualPR(ctx context.Context, t *task.Task) error {
	title := fmt.Sprintf("Issue #%d: %s", t.Issue, t.CommitMessage)
	pr, err := o.Host.CreatePR(ctx, t.Repo, vcs.PRRequest{
		Title: title,
		Body:  prBody(t),
		Head:  t.Branch,
		Base:  o.defaultBaseBranch(),
	})
	if err != nil {
		return o.failTask(ctx, t, cerr.UnknownError, "failed to open PR: "+err.Error(), true)
	}
	if err := t.SetPRNumber(pr.Number, pr.URL); err != nil {
		return err
	}
	if err := t.Transition(task.StatusPrCreated); err != nil {
		return err
	}
	return o.publish(ctx, t, task.EventPrOpened, "orchestrator", pr.URL, "")
}

// defaultBaseBranch is the PR base for a task with no batch context. task.Task
// carries no per-repo default-branch field (only task.Batch does, set at
// batch-formation time), so an individual PR falls back to "main" until a
// repo-level default-branch lookup is added.
func (o *Orchestrator) defaultBaseBranch() string {
	return "main"
}

func prBody(t *task.Task) string {
	body := "Definition of done:\n"
	for _, d := range t.DefinitionOfDone {
		body += "- " + d + "\n"
	}
	return body
}
