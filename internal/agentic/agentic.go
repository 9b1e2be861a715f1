// Package agentic implements the AgenticLoop from spec.md §4.7: a bounded
// self-correction loop executed on TestsFailed when enabled. Grounded on
// the teacher's internal/executor/validation_loop.go ValidateAndHeal
// pattern (loop until a validation condition holds, calling an agent to
// close the gap each iteration), generalized from a single fix-and-retry
// step into reflect -> (replan | fix) -> validate.
package agentic

import (
	"context"
	"time"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/diffvalidator"
	"github.com/avery-holt/cascade/internal/task"
)

// Params are the loop's three bounds, spec.md §4.7.
type Params struct {
	MaxIterations       int
	MaxReplans          int
	ConfidenceThreshold float64
}

// Outcome is what the loop returns: either a final diff on success, or a
// failure reason plus whether a replan was triggered along the way.
type Outcome struct {
	Success       bool
	Diff          string
	CommitMessage string
	Iterations    int
	Replans       int
	LastConfidence float64
	Duration      time.Duration
	FailureReason string
	ReplanTriggered bool
}

// Hooks lets the caller (internal/orchestrator) observe per-iteration
// events without the loop depending on internal/eventbus or internal/store
// directly.
type Hooks struct {
	OnReflection func(iteration int, out agent.ReflectionOutput)
	OnReplan     func(iteration int)
	OnObservation func(iteration int, diagnosis string)
}

// Run executes the bounded loop body spec.md §4.7 describes:
//  1. reflect on the current error/diff/plan
//  2. if rootCause == plan and replans remain, signal a replan
//  3. otherwise fix and validate; on success return the diff
//  4. if confidence < threshold and iterations remain, record an
//     observation and continue; otherwise fail
func Run(ctx context.Context, t *task.Task, reflector agent.Reflector, fixer agent.Fixer, exec *cmdexec.Executor, workDir string, in agent.Input, params Params, hooks Hooks) (Outcome, error) {
	start := time.Now()
	replans := 0

	for iteration := 1; iteration <= params.MaxIterations; iteration++ {
		reflection, err := reflector.Run(ctx, in)
		if err != nil {
			return Outcome{}, cerr.Wrap(cerr.UnknownError, "reflector invocation failed", t.ID.String(), true, err)
		}
		if hooks.OnReflection != nil {
			hooks.OnReflection(iteration, reflection)
		}

		if reflection.RootCause == "plan" && replans < params.MaxReplans {
			replans++
			if hooks.OnReplan != nil {
				hooks.OnReplan(iteration)
			}
			return Outcome{
				Success:         false,
				Iterations:      iteration,
				Replans:         replans,
				LastConfidence:  reflection.Confidence,
				Duration:        time.Since(start),
				ReplanTriggered: true,
				FailureReason:   "root cause identified as plan; replan triggered",
			}, nil
		}

		fixOut, err := fixer.Run(ctx, in)
		if err != nil {
			return Outcome{}, cerr.Wrap(cerr.UnknownError, "fixer invocation failed", t.ID.String(), true, err)
		}

		validation, err := diffvalidator.Validate(ctx, exec, workDir, fixOut.Diff)
		if err != nil {
			return Outcome{}, err
		}
		if validation.Valid {
			return Outcome{
				Success:        true,
				Diff:           fixOut.Diff,
				CommitMessage:  fixOut.CommitMessage,
				Iterations:     iteration,
				Replans:        replans,
				LastConfidence: reflection.Confidence,
				Duration:       time.Since(start),
			}, nil
		}

		if reflection.Confidence < params.ConfidenceThreshold && iteration < params.MaxIterations {
			if hooks.OnObservation != nil {
				hooks.OnObservation(iteration, reflection.Diagnosis)
			}
			continue
		}

		return Outcome{
			Success:        false,
			Iterations:     iteration,
			Replans:        replans,
			LastConfidence: reflection.Confidence,
			Duration:       time.Since(start),
			FailureReason:  "exhausted iterations without a valid diff",
		}, nil
	}

	return Outcome{
		Success:       false,
		Iterations:    params.MaxIterations,
		Replans:       replans,
		Duration:      time.Since(start),
		FailureReason: "exhausted max iterations",
	}, nil
}
