// Package statemachine implements the next-action table from spec.md §4.1
// and re-exposes the closed transition table owned by internal/task so the
// Orchestrator has one place to consult both.
package statemachine

import (
	"github.com/avery-holt/cascade/internal/task"
)

// Action is the handler the Orchestrator should invoke for a given status.
type Action string

const (
	ActionPlan           Action = "plan"
	ActionCode           Action = "code"
	ActionOrchestrate    Action = "orchestrate"
	ActionTest           Action = "test"
	ActionFix            Action = "fix"
	ActionReview         Action = "review"
	ActionOpenPR         Action = "open_pr"
	ActionWait           Action = "wait"
	ActionDone           Action = "done"
	ActionFailedTerminal Action = "failed_terminal"
)

// nextAction is the next-action table from spec.md §4.1.
var nextAction = map[task.Status]Action{
	task.StatusNew:               ActionPlan,
	task.StatusPlanningDone:      ActionCode,
	task.StatusBreakdownDone:     ActionOrchestrate,
	task.StatusOrchestrating:     ActionOrchestrate,
	task.StatusCodingDone:        ActionTest,
	task.StatusTestsPassed:       ActionTest,
	task.StatusTestsFailed:       ActionFix,
	task.StatusVisualTestsPassed: ActionReview,
	task.StatusVisualTestsFailed: ActionFix,
	task.StatusReviewing:         ActionReview,
	task.StatusReviewApproved:    ActionOpenPR,
	task.StatusReviewRejected:    ActionCode,
	task.StatusPrCreated:         ActionWait,
	task.StatusWaitingHuman:      ActionWait,
	task.StatusCompleted:         ActionDone,
	task.StatusFailed:            ActionFailedTerminal,
}

// Allowed delegates to task.Allowed (spec.md §8 invariant 7: Transition is a
// total function that fails iff the edge is not in the allowed set).
func Allowed(from, to task.Status) bool {
	return task.Allowed(from, to)
}

// NextAction returns the handler the Orchestrator should dispatch to for the
// given status. Statuses with no explicit entry (in-flight/waiting states
// not named in the table) default to ActionWait, per spec.md §4.1.
func NextAction(status task.Status) Action {
	if a, ok := nextAction[status]; ok {
		return a
	}
	return ActionWait
}
