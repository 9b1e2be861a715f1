// Package agent declares the LLM-agent capability the orchestration core
// consumes (spec.md §1, §9): a family of closed record types plus a
// `Run(ctx, input) -> (output, err)` interface per agent family. This
// generalizes the teacher's internal/llm.Backend (a single Execute-style
// interface per CLI binary) into the variant-per-family shape
// MultiAgentRunner needs to fan out N agent variants (spec.md §4.6).
package agent

import (
	"context"

	"github.com/avery-holt/cascade/internal/task"
)

// Input is the common envelope passed to every agent family: the task under
// work plus whatever context files the caller assembled (repo context,
// related source, prior diff).
type Input struct {
	Task         *task.Task
	ContextFiles map[string]string
	Prompt       string
	Model        string
}

// PlannerOutput is the closed record spec.md §9 requires for planner
// responses ("define closed record types ... with explicit optional
// fields"). Validated with go-playground/validator struct tags.
type PlannerOutput struct {
	DefinitionOfDone []string           `json:"definition_of_done" validate:"required,min=1"`
	Plan             []string           `validate:"required,min=1"`
	TargetFiles      []string           `json:"target_files" validate:"required,min=1"`
	Complexity       task.Complexity    `validate:"required"`
	Effort           task.Effort        `validate:"omitempty"`
	Commands         []task.CommandSpec `validate:"omitempty,dive"`
}

// CoderOutput is the closed record for coder responses. Diff is either a
// unified diff or an alternate patch format the Coding handler normalizes
// (spec.md §4.10).
type CoderOutput struct {
	Diff          string `validate:"required"`
	CommitMessage string `json:"commit_message" validate:"required"`
	PatchFormat   string `validate:"omitempty,oneof=unified alternate"`
}

// FixerOutput is the closed record for fixer responses.
type FixerOutput struct {
	Diff          string `validate:"required"`
	CommitMessage string `json:"commit_message" validate:"required"`
}

// ReviewVerdict is the closed enum of reviewer decisions. Parsing normalizes
// synonyms like APPROVE/APPROVED per spec.md §9.
type ReviewVerdict string

const (
	VerdictApproved ReviewVerdict = "approved"
	VerdictRejected ReviewVerdict = "rejected"
)

// ReviewerOutput is the closed record for reviewer responses.
type ReviewerOutput struct {
	Verdict  ReviewVerdict `validate:"required,oneof=approved rejected"`
	Comments string        `validate:"omitempty"`
}

// BreakdownOutput is the closed record for breakdown (decomposition)
// responses; internal/decompose takes it directly and builds the subtask
// graph from Tasks.
type BreakdownOutput struct {
	Tasks []BreakdownTask `validate:"required,min=1,dive"`
}

// BreakdownTask is one entry of a BreakdownOutput.
type BreakdownTask struct {
	ID                 string   `validate:"required"`
	Title              string   `validate:"required"`
	TargetFiles        []string `json:"target_files" validate:"required,min=1"`
	AcceptanceCriteria []string `json:"acceptance_criteria" validate:"omitempty"`
	DependsOn          []string `json:"depends_on" validate:"omitempty"`
}

// ReflectionOutput is the closed record produced by the agentic loop's
// reflect step (spec.md §4.7).
type ReflectionOutput struct {
	Diagnosis  string  `validate:"required"`
	RootCause  string  `json:"root_cause" validate:"required,oneof=plan code test environment"`
	Confidence float64 `validate:"gte=0,lte=1"`
}

// Planner, Coder, Fixer, Reviewer, Breakdown, and Reflector are the six agent
// families spec.md §1 lists as out-of-scope collaborators, each reduced to
// the capability interface the core actually calls.
type Planner interface {
	Run(ctx context.Context, in Input) (PlannerOutput, error)
}

type Coder interface {
	Run(ctx context.Context, in Input) (CoderOutput, error)
}

type Fixer interface {
	Run(ctx context.Context, in Input) (FixerOutput, error)
}

type Reviewer interface {
	Run(ctx context.Context, in Input) (ReviewerOutput, error)
}

type Breakdown interface {
	Run(ctx context.Context, in Input) (BreakdownOutput, error)
}

type Reflector interface {
	Run(ctx context.Context, in Input) (ReflectionOutput, error)
}

// Variant names one configured agent invocation target (e.g. a specific
// model) for MultiAgentRunner fan-out (spec.md §4.6).
type Variant struct {
	Name  string
	Model string
}
