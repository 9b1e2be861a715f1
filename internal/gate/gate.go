// Package gate implements the post-phase handoff checks from spec.md §4.2:
// each Gate enumerates required artifacts and reports (passed, missing,
// details, timestamp). A failing Gate forces another attempt of the
// producing phase, subject to retry budget.
package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/avery-holt/cascade/internal/task"
)

// Name identifies one of the four gates spec.md §4.2 enumerates.
type Name string

const (
	PlanningComplete Name = "planning_complete"
	CodingComplete   Name = "coding_complete"
	TestingComplete  Name = "testing_complete"
	ReviewComplete   Name = "review_complete"
)

// Result is the outcome of a gate check.
type Result struct {
	Gate      Name
	Passed    bool
	Missing   []string
	Details   string
	Timestamp time.Time
}

// Check validates t against the named gate, using maxDiffLines from the
// caller's config for the coding gate; the testing gate reads the attempt
// budget from t.MaxAttempts (spec.md §4.2 table).
func Check(name Name, t *task.Task, maxDiffLines int) Result {
	switch name {
	case PlanningComplete:
		return checkPlanningComplete(t)
	case CodingComplete:
		return checkCodingComplete(t, maxDiffLines)
	case TestingComplete:
		return checkTestingComplete(t)
	case ReviewComplete:
		return checkReviewComplete(t)
	default:
		return Result{Gate: name, Passed: false, Missing: []string{"unknown gate"}, Timestamp: time.Now()}
	}
}

func checkPlanningComplete(t *task.Task) Result {
	var missing []string
	if len(t.Plan) == 0 {
		missing = append(missing, "plan")
	}
	if len(t.TargetFiles) == 0 {
		missing = append(missing, "targetFiles")
	}
	if len(t.DefinitionOfDone) == 0 {
		missing = append(missing, "definitionOfDone")
	}
	if t.Complexity == "" {
		missing = append(missing, "complexity")
	}
	// effort is optional; defaults to medium per spec.md §4.2.
	if t.Effort == "" {
		t.Effort = task.EffortMedium
	}
	return Result{Gate: PlanningComplete, Passed: len(missing) == 0, Missing: missing, Timestamp: time.Now()}
}

func checkCodingComplete(t *task.Task, maxDiffLines int) Result {
	var missing []string
	if t.CurrentDiff == "" || !hasDiffMarkers(t.CurrentDiff) {
		missing = append(missing, "currentDiff")
	}
	if t.Branch == "" {
		missing = append(missing, "branch")
	}
	details := ""
	if lc := diffLineCount(t.CurrentDiff); lc > maxDiffLines {
		missing = append(missing, "lineCount")
		details = fmt.Sprintf("diff has %d lines, exceeds MAX_DIFF_LINES=%d", lc, maxDiffLines)
	}
	return Result{Gate: CodingComplete, Passed: len(missing) == 0, Missing: missing, Details: details, Timestamp: time.Now()}
}

func checkTestingComplete(t *task.Task) Result {
	var missing []string
	if t.Status != task.StatusTestsPassed {
		missing = append(missing, "status=TestsPassed")
	}
	if t.AttemptCount > t.MaxAttempts {
		missing = append(missing, "attempts")
	}
	return Result{Gate: TestingComplete, Passed: len(missing) == 0, Missing: missing, Timestamp: time.Now()}
}

func checkReviewComplete(t *task.Task) Result {
	if t.Status != task.StatusReviewApproved {
		return Result{Gate: ReviewComplete, Passed: false, Missing: []string{"approvedReview"}, Timestamp: time.Now()}
	}
	return Result{Gate: ReviewComplete, Passed: true, Timestamp: time.Now()}
}

func hasDiffMarkers(diff string) bool {
	return len(diff) > 0 && (strings.Contains(diff, "--- ") || strings.Contains(diff, "+++ ") || strings.Contains(diff, "@@"))
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
