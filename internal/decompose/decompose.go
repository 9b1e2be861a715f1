// Package decompose implements the Decomposer/SubtaskManager from spec.md
// §4.8: splitting an M/L task into ordered XS/S subtasks, deriving a
// topological execution order, and advancing OrchestrationState one
// subtask per tick. Grounded on yarlson-ralph's internal/decomposer
// (PRD -> YAML task graph with dependsOn edges), generalized from a
// PRD-wide decomposition into a single task's subtask breakdown, and on
// its taskstore-style dependency linting (cycle/missing-reference
// detection) for BuildExecutionOrder.
package decompose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/task"
)

// BuildExecutionOrder derives a topological order over subtasks from their
// DependsOn edges (Kahn's algorithm, deterministic tie-break by subtask ID
// ascending so the order is stable across runs), grounded on
// yarlson-ralph's taskstore.LintTaskSet cycle detection.
func BuildExecutionOrder(subtasks []*task.Subtask) ([]string, error) {
	byID := make(map[string]*task.Subtask, len(subtasks))
	indegree := make(map[string]int, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = s
		indegree[s.ID] = 0
	}
	for _, s := range subtasks {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, cerr.Newf(cerr.MissingField, "", false, "subtask %s depends on unknown subtask %s", s.ID, dep)
			}
			indegree[s.ID]++
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	remaining := indegree
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, s := range subtasks {
			for _, dep := range s.DependsOn {
				if dep == next {
					remaining[s.ID]--
					if remaining[s.ID] == 0 {
						ready = append(ready, s.ID)
					}
				}
			}
		}
	}

	if len(order) != len(subtasks) {
		return nil, cerr.New(cerr.MissingField, "subtask dependency graph contains a cycle", "", false)
	}
	return order, nil
}

// Decompose converts a Breakdown agent's output into a persisted
// OrchestrationState, deriving execution_order via BuildExecutionOrder.
// Callers are responsible for the trigger precondition (spec.md §4.8:
// "Triggered in PlanningDone iff complexity in {M,L} and no existing
// OrchestrationState").
func Decompose(out agent.BreakdownOutput, maxSubtaskAttempts int) (*task.OrchestrationState, error) {
	subtasks := make([]*task.Subtask, 0, len(out.Tasks))
	for _, bt := range out.Tasks {
		subtasks = append(subtasks, &task.Subtask{
			ID:                 bt.ID,
			Status:             task.SubtaskPending,
			MaxAttempts:        maxSubtaskAttempts,
			TargetFiles:        bt.TargetFiles,
			AcceptanceCriteria: bt.AcceptanceCriteria,
			DependsOn:          bt.DependsOn,
		})
	}

	order, err := BuildExecutionOrder(subtasks)
	if err != nil {
		return nil, err
	}
	return task.NewOrchestrationState(subtasks, order), nil
}

// TickOutcome reports what one SubtaskManager.Tick call did, per spec.md
// §4.8's "tick granularity guarantees external visibility; no single tick
// processes all subtasks."
type TickOutcome string

const (
	TickAggregated    TickOutcome = "aggregated"
	TickCompleted     TickOutcome = "completed_subtask"
	TickRequeued      TickOutcome = "requeued_subtask"
	TickSubtaskFailed TickOutcome = "subtask_failed"
	TickIdle          TickOutcome = "idle"
)

// TickResult is Tick's return value.
type TickResult struct {
	Outcome    TickOutcome
	SubtaskID  string
	Diff       string
	FailReason string
}

// Tick advances orchestration by exactly one step, per spec.md §4.8's two
// numbered rules: aggregate when every subtask is completed, otherwise pick
// and process the next ready subtask.
func Tick(ctx context.Context, parent *task.Task, coder agent.Coder, contextFiles map[string]string) (TickResult, error) {
	state := parent.Orchestration
	if state == nil {
		return TickResult{}, cerr.New(cerr.InvalidState, "task has no orchestration state", parent.ID.String(), false)
	}

	if state.AllCompleted() {
		diff := Aggregate(state)
		parent.CurrentDiff = diff
		parent.CommitMessage = fmt.Sprintf("Aggregate %d subtasks for issue #%d", len(state.Subtasks), parent.Issue)
		if parent.Branch == "" {
			parent.Branch = fmt.Sprintf("cascade/issue-%d", parent.Issue)
		}
		return TickResult{Outcome: TickAggregated, Diff: diff}, nil
	}

	if state.AnyFailed() {
		return TickResult{Outcome: TickSubtaskFailed, FailReason: "a subtask exhausted its retry budget"}, nil
	}

	next := state.NextPending()
	if next == nil {
		return TickResult{Outcome: TickIdle}, nil
	}

	if err := state.StartSubtask(next); err != nil {
		return TickResult{}, err
	}

	out, err := coder.Run(ctx, agent.Input{
		Task:         parent,
		ContextFiles: contextFiles,
		Prompt:       subtaskPrompt(next),
	})
	if err != nil || out.Diff == "" {
		state.FailOrRetrySubtask(next)
		if next.Status == task.SubtaskFailed {
			parent.Fail(string(cerr.SubtaskFailed), fmt.Sprintf("subtask %s exhausted retries", next.ID))
			return TickResult{Outcome: TickSubtaskFailed, SubtaskID: next.ID}, nil
		}
		return TickResult{Outcome: TickRequeued, SubtaskID: next.ID}, nil
	}

	if err := state.CompleteSubtask(next, out.Diff); err != nil {
		return TickResult{}, err
	}
	return TickResult{Outcome: TickCompleted, SubtaskID: next.ID, Diff: out.Diff}, nil
}

func subtaskPrompt(s *task.Subtask) string {
	var sb strings.Builder
	sb.WriteString("Implement subtask ")
	sb.WriteString(s.ID)
	sb.WriteString(" targeting: ")
	sb.WriteString(strings.Join(s.TargetFiles, ", "))
	if len(s.AcceptanceCriteria) > 0 {
		sb.WriteString("\nAcceptance criteria:\n- ")
		sb.WriteString(strings.Join(s.AcceptanceCriteria, "\n- "))
	}
	return sb.String()
}

// Aggregate concatenates each completed subtask's diff in execution_order,
// preserving a per-subtask header, per spec.md §4.8 rule 1.
func Aggregate(state *task.OrchestrationState) string {
	var sb strings.Builder
	for _, id := range state.ExecutionOrder {
		s := findSubtask(state, id)
		if s == nil || s.Diff == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("# --- subtask %s ---\n", id))
		sb.WriteString(s.Diff)
		if !strings.HasSuffix(s.Diff, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func findSubtask(state *task.OrchestrationState, id string) *task.Subtask {
	for _, s := range state.Subtasks {
		if s.ID == id {
			return s
		}
	}
	return nil
}
