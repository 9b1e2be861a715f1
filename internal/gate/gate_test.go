package gate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/gate"
	"github.com/avery-holt/cascade/internal/task"
)

func TestPlanningCompleteDefaultsEffort(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	tk.Plan = []string{"add fn greet"}
	tk.TargetFiles = []string{"src/greet.ts"}
	tk.DefinitionOfDone = []string{"greet returns hi"}
	tk.Complexity = task.ComplexityXS

	res := gate.Check(gate.PlanningComplete, tk, 700)
	require.True(t, res.Passed)
	require.Equal(t, task.EffortMedium, tk.Effort)
}

func TestPlanningCompleteReportsMissing(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	res := gate.Check(gate.PlanningComplete, tk, 700)
	require.False(t, res.Passed)
	require.Contains(t, res.Missing, "plan")
	require.Contains(t, res.Missing, "targetFiles")
	require.Contains(t, res.Missing, "definitionOfDone")
	require.Contains(t, res.Missing, "complexity")
}

func TestCodingCompleteEnforcesMaxDiffLines(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	tk.Branch = "cascade/issue-1"
	tk.CurrentDiff = "--- a/x\n+++ b/x\n@@ -1,1 +1,1 @@\n-old\n+new\n"

	res := gate.Check(gate.CodingComplete, tk, 0)
	require.False(t, res.Passed)
	require.Contains(t, res.Missing, "lineCount")
}

func TestReviewCompleteRequiresApprovedStatus(t *testing.T) {
	tk := task.New("acme/x", 1, 3)
	tk.Status = task.StatusReviewRejected
	res := gate.Check(gate.ReviewComplete, tk, 700)
	require.False(t, res.Passed)
	require.Contains(t, res.Missing, "approvedReview")

	tk.Status = task.StatusReviewApproved
	res = gate.Check(gate.ReviewComplete, tk, 700)
	require.True(t, res.Passed)
}

func TestNilPolicyGateAllows(t *testing.T) {
	var pg *gate.PolicyGate
	tk := task.New("acme/x", 1, 3)
	allowed, err := pg.Evaluate(context.Background(), tk)
	require.NoError(t, err)
	require.True(t, allowed)
}
