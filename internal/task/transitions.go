package task

// edges is the exact allowed-transition table from spec.md §4.1. Every
// transition not listed here fails with InvalidState (enforced by
// Task.Transition). Lives in this package because it governs Task's own
// invariant (status only changes through a validated transition); the
// statemachine package re-exposes it alongside the next-action table so the
// Orchestrator has one place to consult both.
var edges = map[Status][]Status{
	StatusNew:                 {StatusPlanning, StatusFailed},
	StatusPlanning:            {StatusPlanningDone, StatusFailed},
	StatusPlanningDone:        {StatusCoding, StatusBreakingDown, StatusFailed},
	StatusBreakingDown:        {StatusBreakdownDone, StatusFailed},
	StatusBreakdownDone:       {StatusOrchestrating, StatusFailed},
	StatusOrchestrating:       {StatusCodingDone, StatusFailed},
	StatusCoding:              {StatusCodingDone, StatusFailed},
	StatusCodingDone:          {StatusTesting, StatusFailed},
	StatusTesting:             {StatusTestsPassed, StatusTestsFailed, StatusFailed},
	StatusTestsPassed:         {StatusVisualTesting, StatusReviewing, StatusFailed},
	StatusTestsFailed:         {StatusFixing, StatusReflecting, StatusFailed},
	StatusVisualTesting:       {StatusVisualTestsPassed, StatusVisualTestsFailed, StatusFailed},
	StatusVisualTestsPassed:   {StatusReviewing, StatusFailed},
	StatusVisualTestsFailed:   {StatusFixing, StatusReflecting, StatusFailed},
	StatusReflecting:          {StatusReplanning, StatusFixing, StatusFailed},
	StatusReplanning:          {StatusCoding, StatusFailed},
	StatusFixing:              {StatusCodingDone, StatusFailed},
	StatusReviewing:           {StatusReviewing, StatusReviewApproved, StatusReviewRejected, StatusFailed},
	StatusReviewApproved:      {StatusPrCreated, StatusWaitingBatch, StatusFailed},
	StatusReviewRejected:      {StatusCoding, StatusFailed},
	StatusWaitingBatch:        {StatusPrCreated, StatusReviewApproved, StatusFailed},
	StatusPrCreated:           {StatusWaitingHuman, StatusFailed},
	StatusWaitingHuman:        {StatusCompleted, StatusReviewRejected, StatusFailed},
	// PlanPendingApproval is named in the closed set (spec.md §4.1) without its
	// own outgoing edges enumerated; treated as equivalent to Planning for
	// transition purposes (external producers may park a task here pending
	// human sign-off before handing it back to PlanningDone).
	StatusPlanPendingApproval: {StatusPlanningDone, StatusFailed},
}

// Allowed reports whether the edge from -> to is in the closed transition
// set (spec.md §8 invariant 7).
func Allowed(from, to Status) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
