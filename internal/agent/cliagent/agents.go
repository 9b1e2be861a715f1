package cliagent

import (
	"context"
	"encoding/json"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/cerr"
)

const (
	rolePlanner   = "You are Cascade's planning agent. Read the issue and produce a JSON object matching PlannerOutput: definition_of_done, plan, target_files, complexity (xs|s|m|l|xl), effort (low|medium|high)."
	roleCoder     = "You are Cascade's coding agent. Implement the plan as a unified diff. Respond with a JSON object matching CoderOutput: diff, commit_message."
	roleFixer     = "You are Cascade's fix agent. The prior diff failed review or tests; produce a corrected unified diff. Respond with a JSON object matching FixerOutput: diff, commit_message."
	roleReviewer  = "You are Cascade's review agent. Judge the current diff against the definition of done. Respond with a JSON object matching ReviewerOutput: verdict (approved|rejected), comments."
	roleBreakdown = "You are Cascade's decomposition agent. Split the task into an ordered subtask graph. Respond with a JSON object matching BreakdownOutput: tasks (id, title, target_files, acceptance_criteria, depends_on)."
	roleReflector = "You are Cascade's reflection agent. Diagnose why the last attempt failed. Respond with a JSON object matching ReflectionOutput: diagnosis, root_cause (plan|code|test|environment), confidence (0-1)."
)

// run executes backend against a role prompt and decodes the result into
// out via agent.ParseAndValidate, the shared tolerant-JSON decode path every
// family uses.
func run(ctx context.Context, backend Backend, role string, in agent.Input, out interface{}) error {
	workDir := ""
	taskID := ""
	if in.Task != nil {
		workDir = in.Task.Branch
		taskID = in.Task.ID.String()
	}
	rc, err := backend.Execute(ctx, execOptions(role, in, workDir))
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "cliagent backend failed to start", taskID, true, err)
	}
	defer rc.Close()

	result, err := collectResult(rc)
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "cliagent backend stream read failed", taskID, true, err)
	}
	return agent.ParseAndValidate(result, taskID, out)
}

// Planner implements agent.Planner against a Backend.
type Planner struct{ Backend Backend }

func (p *Planner) Run(ctx context.Context, in agent.Input) (agent.PlannerOutput, error) {
	var out agent.PlannerOutput
	err := run(ctx, p.Backend, rolePlanner, in, &out)
	return out, err
}

// Coder implements agent.Coder against a Backend.
type Coder struct{ Backend Backend }

func (c *Coder) Run(ctx context.Context, in agent.Input) (agent.CoderOutput, error) {
	var out agent.CoderOutput
	err := run(ctx, c.Backend, roleCoder, in, &out)
	return out, err
}

// Fixer implements agent.Fixer against a Backend.
type Fixer struct{ Backend Backend }

func (f *Fixer) Run(ctx context.Context, in agent.Input) (agent.FixerOutput, error) {
	var out agent.FixerOutput
	err := run(ctx, f.Backend, roleFixer, in, &out)
	return out, err
}

// Reviewer implements agent.Reviewer against a Backend. The verdict is
// re-normalized through agent.NormalizeVerdict after decode so synonyms the
// schema's oneof tag would otherwise reject (APPROVE, LGTM, ...) still pass.
type Reviewer struct{ Backend Backend }

func (r *Reviewer) Run(ctx context.Context, in agent.Input) (agent.ReviewerOutput, error) {
	var raw struct {
		Verdict  string `json:"verdict" validate:"required"`
		Comments string `json:"comments" validate:"omitempty"`
	}
	taskID := ""
	if in.Task != nil {
		taskID = in.Task.ID.String()
	}
	workDir := ""
	if in.Task != nil {
		workDir = in.Task.Branch
	}
	rc, err := r.Backend.Execute(ctx, execOptions(roleReviewer, in, workDir))
	if err != nil {
		return agent.ReviewerOutput{}, cerr.Wrap(cerr.UnknownError, "cliagent backend failed to start", taskID, true, err)
	}
	defer rc.Close()
	result, err := collectResult(rc)
	if err != nil {
		return agent.ReviewerOutput{}, cerr.Wrap(cerr.UnknownError, "cliagent backend stream read failed", taskID, true, err)
	}
	payload := agent.ExtractJSON(result)
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return agent.ReviewerOutput{}, cerr.Wrap(cerr.MissingField, "reviewer output is not valid JSON", taskID, true, err)
	}
	return agent.ReviewerOutput{
		Verdict:  agent.NormalizeVerdict(raw.Verdict),
		Comments: raw.Comments,
	}, nil
}

// Breakdown implements agent.Breakdown against a Backend.
type Breakdown struct{ Backend Backend }

func (b *Breakdown) Run(ctx context.Context, in agent.Input) (agent.BreakdownOutput, error) {
	var out agent.BreakdownOutput
	err := run(ctx, b.Backend, roleBreakdown, in, &out)
	return out, err
}

// Reflector implements agent.Reflector against a Backend.
type Reflector struct{ Backend Backend }

func (r *Reflector) Run(ctx context.Context, in agent.Input) (agent.ReflectionOutput, error) {
	var out agent.ReflectionOutput
	err := run(ctx, r.Backend, roleReflector, in, &out)
	return out, err
}
