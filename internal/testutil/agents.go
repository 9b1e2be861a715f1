package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/avery-holt/cascade/internal/agent"
)

// FakePlanner returns Output for every call, recording every Input it saw.
type FakePlanner struct {
	mu     sync.Mutex
	Output agent.PlannerOutput
	Err    error
	Calls  []agent.Input
}

func (f *FakePlanner) Run(ctx context.Context, in agent.Input) (agent.PlannerOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, in)
	return f.Output, f.Err
}

// FakeCoder returns the next entry of Outputs on each call (repeating the
// last entry once exhausted), so a test can script "first attempt invalid,
// second attempt valid" sequences.
type FakeCoder struct {
	mu      sync.Mutex
	Outputs []agent.CoderOutput
	Errs    []error
	Calls   []agent.Input
}

func (f *FakeCoder) Run(ctx context.Context, in agent.Input) (agent.CoderOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.Calls)
	f.Calls = append(f.Calls, in)
	out := f.at(f.Outputs, idx, agent.CoderOutput{})
	var err error
	if idx < len(f.Errs) {
		err = f.Errs[idx]
	}
	return out, err
}

func (f *FakeCoder) at(outs []agent.CoderOutput, idx int, zero agent.CoderOutput) agent.CoderOutput {
	if len(outs) == 0 {
		return zero
	}
	if idx >= len(outs) {
		idx = len(outs) - 1
	}
	return outs[idx]
}

// CallCount reports how many times Run has been invoked.
func (f *FakeCoder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FakeFixer mirrors FakeCoder's scripted-sequence shape for the fixer family.
type FakeFixer struct {
	mu      sync.Mutex
	Outputs []agent.FixerOutput
	Errs    []error
	Calls   []agent.Input
}

func (f *FakeFixer) Run(ctx context.Context, in agent.Input) (agent.FixerOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.Calls)
	f.Calls = append(f.Calls, in)
	var out agent.FixerOutput
	if len(f.Outputs) > 0 {
		if idx >= len(f.Outputs) {
			idx = len(f.Outputs) - 1
		}
		out = f.Outputs[idx]
	}
	var err error
	if idx < len(f.Errs) {
		err = f.Errs[idx]
	}
	return out, err
}

func (f *FakeFixer) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FakeReviewer returns Verdicts in sequence (repeating the last), so a test
// can script a reject-then-approve cycle.
type FakeReviewer struct {
	mu       sync.Mutex
	Verdicts []agent.ReviewerOutput
	Calls    []agent.Input
}

func (f *FakeReviewer) Run(ctx context.Context, in agent.Input) (agent.ReviewerOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.Calls)
	f.Calls = append(f.Calls, in)
	if len(f.Verdicts) == 0 {
		return agent.ReviewerOutput{Verdict: agent.VerdictApproved}, nil
	}
	if idx >= len(f.Verdicts) {
		idx = len(f.Verdicts) - 1
	}
	return f.Verdicts[idx], nil
}

// FakeBreakdown returns Output for every call.
type FakeBreakdown struct {
	mu     sync.Mutex
	Output agent.BreakdownOutput
	Err    error
	Calls  []agent.Input
}

func (f *FakeBreakdown) Run(ctx context.Context, in agent.Input) (agent.BreakdownOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, in)
	return f.Output, f.Err
}

// FakeReflector returns the next entry of Outputs in sequence (repeating
// the last), scripting the confidence/root-cause trajectory a test needs
// to drive the agentic loop (spec.md §8 scenario 6).
type FakeReflector struct {
	mu      sync.Mutex
	Outputs []agent.ReflectionOutput
	Calls   []agent.Input
}

func (f *FakeReflector) Run(ctx context.Context, in agent.Input) (agent.ReflectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.Calls)
	f.Calls = append(f.Calls, in)
	if len(f.Outputs) == 0 {
		return agent.ReflectionOutput{Diagnosis: "unscripted", RootCause: "code", Confidence: 0.5}, nil
	}
	if idx >= len(f.Outputs) {
		idx = len(f.Outputs) - 1
	}
	return f.Outputs[idx], nil
}

var (
	_ agent.Planner   = (*FakePlanner)(nil)
	_ agent.Coder     = (*FakeCoder)(nil)
	_ agent.Fixer     = (*FakeFixer)(nil)
	_ agent.Reviewer  = (*FakeReviewer)(nil)
	_ agent.Breakdown = (*FakeBreakdown)(nil)
	_ agent.Reflector = (*FakeReflector)(nil)
)

// UnifiedDiff builds a minimal single-hunk unified diff touching path,
// replacing oldLine with newLine -- enough to satisfy patchparse.Parse and
// diffvalidator.QuickCheck's structural checks.
func UnifiedDiff(path, oldLine, newLine string) string {
	return fmt.Sprintf(
		"--- a/%s\n+++ b/%s\n@@ -1,1 +1,1 @@\n-%s\n+%s\n",
		path, path, oldLine, newLine,
	)
}
