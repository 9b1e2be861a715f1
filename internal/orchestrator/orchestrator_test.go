package orchestrator_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/batch"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/eventbus"
	"github.com/avery-holt/cascade/internal/memory"
	"github.com/avery-holt/cascade/internal/orchestrator"
	memstore "github.com/avery-holt/cascade/internal/store/memory"
	"github.com/avery-holt/cascade/internal/task"
	"github.com/avery-holt/cascade/internal/testutil"
)

// harness bundles one Orchestrator wired against in-process fakes, following
// the teacher's own test-setup-by-struct pattern.
type harness struct {
	Orch  *orchestrator.Orchestrator
	Store *memstore.Store
	Host  *testutil.FakeHost

	Planner   *testutil.FakePlanner
	Coder     *testutil.FakeCoder
	Fixer     *testutil.FakeFixer
	Reviewer  *testutil.FakeReviewer
	Breakdown *testutil.FakeBreakdown
	Reflector *testutil.FakeReflector
}

func newHarness(cfg *config.Config) *harness {
	s := memstore.New()
	bus := eventbus.New(s)
	host := testutil.NewFakeHost()

	h := &harness{
		Store:     s,
		Host:      host,
		Planner:   &testutil.FakePlanner{},
		Coder:     &testutil.FakeCoder{},
		Fixer:     &testutil.FakeFixer{},
		Reviewer:  &testutil.FakeReviewer{},
		Breakdown: &testutil.FakeBreakdown{},
		Reflector: &testutil.FakeReflector{},
	}
	h.Orch = &orchestrator.Orchestrator{
		Store:  s,
		Host:   host,
		Bus:    bus,
		Memory: memory.New(s),
		Batch:  batch.New(s, testutil.NewLocker()),
		Exec:   cmdexec.New(),
		Cfg:    cfg,
		Agents: orchestrator.Agents{
			Planner:   h.Planner,
			Coder:     h.Coder,
			Fixer:     h.Fixer,
			Reviewer:  h.Reviewer,
			Breakdown: h.Breakdown,
			Reflector: h.Reflector,
		},
	}
	return h
}

// seedTask creates and stores a new task in status New for repo/issue.
func (h *harness) seedTask(t *testing.T, repo string, issue int, maxAttempts int) *task.Task {
	t.Helper()
	tk := task.New(repo, issue, maxAttempts)
	require.NoError(t, h.Store.CreateTask(context.Background(), tk))
	return tk
}

// tick processes id once and returns the persisted task.
func (h *harness) tick(t *testing.T, id uuid.UUID) (*task.Task, error) {
	t.Helper()
	return h.Orch.Process(context.Background(), id)
}

// driveUntil ticks id repeatedly (failing the test if an unexpected,
// non-nil dispatch error surfaces) until its status matches one of wanted or
// maxTicks is exhausted.
func (h *harness) driveUntil(t *testing.T, id uuid.UUID, maxTicks int, wanted ...task.Status) *task.Task {
	t.Helper()
	var last *task.Task
	for i := 0; i < maxTicks; i++ {
		tk, err := h.tick(t, id)
		require.NoError(t, err, "unexpected dispatch error on tick %d", i)
		last = tk
		for _, w := range wanted {
			if tk.Status == w {
				return tk
			}
		}
	}
	t.Fatalf("status never reached %v after %d ticks, last=%s", wanted, maxTicks, last.Status)
	return nil
}

func eventTypes(t *testing.T, h *harness, taskID uuid.UUID) []task.EventType {
	t.Helper()
	events, err := h.Store.GetTaskEvents(context.Background(), taskID)
	require.NoError(t, err)
	out := make([]task.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func containsEvent(types []task.EventType, want task.EventType) bool {
	for _, ty := range types {
		if ty == want {
			return true
		}
	}
	return false
}

func xsConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.EnableBatchMerge = false
	return cfg
}

// Scenario 1 (spec.md §8): Happy XS path. Planner -> Coder -> Test -> Review
// -> OpenPR, ending at PrCreated with PR creation called exactly once and a
// full event trace.
func TestHappyXSPath(t *testing.T) {
	h := newHarness(xsConfig())
	tk := h.seedTask(t, "acme/x", 1, 3)

	h.Planner.Output = agent.PlannerOutput{
		DefinitionOfDone: []string{"greet returns 'hi'"},
		Plan:             []string{"add fn greet"},
		TargetFiles:      []string{"src/greet.ts"},
		Complexity:       task.ComplexityXS,
		Effort:           task.EffortLow,
	}
	h.Coder.Outputs = []agent.CoderOutput{
		{Diff: testutil.UnifiedDiff("src/greet.ts", "old", "new"), CommitMessage: "add greet()"},
	}
	h.Reviewer.Verdicts = []agent.ReviewerOutput{{Verdict: agent.VerdictApproved}}

	workDir := testutil.WorkDir(t, "exit 0")
	tk.Branch = workDir // pre-set so codingAttempt's typecheck execs against a real dir
	require.NoError(t, h.Store.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano()))

	final := h.driveUntil(t, tk.ID, 10, task.StatusPrCreated, task.StatusFailed)
	require.Equal(t, task.StatusPrCreated, final.Status)

	assert.Equal(t, 1, h.Host.PRCount())

	types := eventTypes(t, h, tk.ID)
	assert.GreaterOrEqual(t, len(types), 6)
	for _, want := range []task.EventType{
		task.EventPlanned, task.EventCoded, task.EventTested, task.EventReviewed, task.EventPrOpened,
	} {
		assert.True(t, containsEvent(types, want), "expected %s in event trace %v", want, types)
	}
}

// Scenario 2 (spec.md §8): Retry via fixer. The coder's diff fails the
// typecheck step twice; the fixer's diff then passes. Expect attempt_count=2
// at success and two TestsFailed -> Fixing -> CodingDone cycles, with no
// extra PR calls until the final approval.
func TestRetryViaFixer(t *testing.T) {
	h := newHarness(xsConfig())
	tk := h.seedTask(t, "acme/x", 2, 3)

	h.Planner.Output = agent.PlannerOutput{
		DefinitionOfDone: []string{"fn compiles"},
		Plan:             []string{"add fn"},
		TargetFiles:      []string{"src/app.ts"},
		Complexity:       task.ComplexityXS,
		Effort:           task.EffortLow,
	}
	h.Coder.Outputs = []agent.CoderOutput{
		{Diff: testutil.UnifiedDiff("src/app.ts", "old", "broken"), CommitMessage: "first pass"},
	}
	h.Fixer.Outputs = []agent.FixerOutput{
		{Diff: testutil.UnifiedDiff("src/app.ts", "broken", "still-broken"), CommitMessage: "fix 1"},
		{Diff: testutil.UnifiedDiff("src/app.ts", "still-broken", "fixed"), CommitMessage: "fix 2"},
	}
	h.Reviewer.Verdicts = []agent.ReviewerOutput{{Verdict: agent.VerdictApproved}}

	// typecheck fails the first two invocations (coder's diff, fixer's first
	// diff) then passes from the third invocation on (fixer's second diff).
	workDir := testutil.FlakyTypecheckWorkDir(t, 2)
	tk.Branch = workDir
	require.NoError(t, h.Store.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano()))

	final := h.driveUntil(t, tk.ID, 20, task.StatusPrCreated, task.StatusFailed)
	require.Equal(t, task.StatusPrCreated, final.Status)
	assert.Equal(t, 2, final.AttemptCount)
	assert.Equal(t, 1, h.Host.PRCount())

	types := eventTypes(t, h, tk.ID)
	fixedCount := 0
	for _, ty := range types {
		if ty == task.EventFixed {
			fixedCount++
		}
	}
	assert.Equal(t, 2, fixedCount, "expected two TestsFailed -> Fixing -> CodingDone cycles, events=%v", types)
}

// Scenario 6 (spec.md §8): a 2-iteration agentic fix loop with no replan
// must emit exactly two ReflectionComplete events and zero ReplanTriggered
// events -- one event per loop iteration, not one summary event after the
// whole loop returns.
func TestAgenticLoopEmitsReflectionPerIteration(t *testing.T) {
	cfg := xsConfig()
	cfg.UseAgenticLoop = true
	h := newHarness(cfg)
	tk := h.seedTask(t, "acme/x", 4, 3)

	h.Planner.Output = agent.PlannerOutput{
		DefinitionOfDone: []string{"fn compiles"},
		Plan:             []string{"add fn"},
		TargetFiles:      []string{"src/app.ts"},
		Complexity:       task.ComplexityXS,
		Effort:           task.EffortLow,
	}
	h.Coder.Outputs = []agent.CoderOutput{
		{Diff: testutil.UnifiedDiff("src/app.ts", "old", "broken"), CommitMessage: "first pass"},
	}
	h.Reflector.Outputs = []agent.ReflectionOutput{
		{Diagnosis: "missing import", RootCause: "code", Confidence: 0.4},
		{Diagnosis: "import added", RootCause: "code", Confidence: 0.9},
	}
	h.Fixer.Outputs = []agent.FixerOutput{
		{Diff: testutil.UnifiedDiff("src/app.ts", "broken", "still-broken"), CommitMessage: "fix 1"},
		{Diff: testutil.UnifiedDiff("src/app.ts", "still-broken", "fixed"), CommitMessage: "fix 2"},
	}
	h.Reviewer.Verdicts = []agent.ReviewerOutput{{Verdict: agent.VerdictApproved}}

	// typecheck fails the first invocation (fixer's first diff, iteration 1)
	// then passes (fixer's second diff, iteration 2), forcing exactly two
	// reflect/fix cycles with no replan.
	workDir := testutil.FlakyTypecheckWorkDir(t, 1)
	tk.Branch = workDir
	require.NoError(t, h.Store.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano()))

	final := h.driveUntil(t, tk.ID, 20, task.StatusPrCreated, task.StatusFailed)
	require.Equal(t, task.StatusPrCreated, final.Status)

	types := eventTypes(t, h, tk.ID)
	reflectionCount, replanCount := 0, 0
	for _, ty := range types {
		switch ty {
		case task.EventReflectionComplete:
			reflectionCount++
		case task.EventReplanTriggered:
			replanCount++
		}
	}
	assert.Equal(t, 2, reflectionCount, "expected one ReflectionComplete per iteration, events=%v", types)
	assert.Equal(t, 0, replanCount, "expected no replan for an all-code-root-cause loop, events=%v", types)
}

// Invariant 1 (spec.md §8): consecutive statuses always form a valid edge —
// Process() never leaves a task parked in a transient status (Coding,
// Fixing, Reflecting, Replanning, BreakingDown) between ticks.
func TestProcessNeverParksInTransientStatus(t *testing.T) {
	transient := map[task.Status]bool{
		task.StatusCoding:       true,
		task.StatusFixing:       true,
		task.StatusReflecting:   true,
		task.StatusReplanning:   true,
		task.StatusBreakingDown: true,
	}
	h := newHarness(xsConfig())
	tk := h.seedTask(t, "acme/x", 3, 3)

	h.Planner.Output = agent.PlannerOutput{
		DefinitionOfDone: []string{"done"},
		Plan:             []string{"step"},
		TargetFiles:      []string{"src/a.ts"},
		Complexity:       task.ComplexityXS,
		Effort:           task.EffortLow,
	}
	h.Coder.Outputs = []agent.CoderOutput{{Diff: testutil.UnifiedDiff("src/a.ts", "x", "y"), CommitMessage: "m"}}
	h.Reviewer.Verdicts = []agent.ReviewerOutput{{Verdict: agent.VerdictApproved}}

	workDir := testutil.WorkDir(t, "exit 0")
	tk.Branch = workDir
	require.NoError(t, h.Store.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano()))

	for i := 0; i < 10; i++ {
		tk, err := h.tick(t, tk.ID)
		require.NoError(t, err)
		assert.False(t, transient[tk.Status], "task parked in transient status %s after tick %d", tk.Status, i)
		if tk.Status == task.StatusPrCreated || tk.Status == task.StatusFailed {
			break
		}
	}
}

// Invariant 2 (spec.md §8): attempt_count <= max_attempts at all times, and
// exhausting the budget on a non-success path moves the task to Failed.
func TestAttemptBudgetExhaustionFails(t *testing.T) {
	h := newHarness(xsConfig())
	tk := h.seedTask(t, "acme/x", 4, 1)

	h.Planner.Output = agent.PlannerOutput{
		DefinitionOfDone: []string{"done"},
		Plan:             []string{"step"},
		TargetFiles:      []string{"src/a.ts"},
		Complexity:       task.ComplexityXS,
		Effort:           task.EffortLow,
	}
	h.Coder.Outputs = []agent.CoderOutput{{Diff: testutil.UnifiedDiff("src/a.ts", "x", "y"), CommitMessage: "m"}}

	// typecheck always fails; with MaxAttempts=1 the first failed check
	// uses the only attempt, the coder's retry fails again, and the task
	// fails once the budget is exhausted.
	workDir := testutil.WorkDir(t, "exit 1")
	tk.Branch = workDir
	require.NoError(t, h.Store.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano()))

	final := h.driveUntil(t, tk.ID, 10, task.StatusFailed, task.StatusPrCreated)
	require.Equal(t, task.StatusFailed, final.Status)
	assert.LessOrEqual(t, final.AttemptCount, final.MaxAttempts)
}

// A terminal task is never re-dispatched: Process() is a no-op that simply
// returns the task unchanged (spec.md §3's terminal-state invariant).
func TestProcessNoopsOnTerminalTask(t *testing.T) {
	h := newHarness(xsConfig())
	tk := h.seedTask(t, "acme/x", 5, 3)
	tk.Status = task.StatusCompleted
	require.NoError(t, h.Store.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano()))

	out, err := h.tick(t, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, out.Status)
	assert.Empty(t, eventTypes(t, h, tk.ID))
}
