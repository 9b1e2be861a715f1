// Package modelselect implements the ModelSelector from spec.md §4.5: a
// pure function of {complexity, effort, attemptCount, subtaskFlag} that
// picks a model and records a stable, logged rationale.
package modelselect

import (
	"fmt"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/task"
)

// CostBucket buckets the relative cost of the chosen model, reported
// alongside the rationale string (spec.md §4.5: "must return... an
// estimated cost bucket").
type CostBucket string

const (
	CostLow    CostBucket = "low"
	CostMedium CostBucket = "medium"
	CostHigh   CostBucket = "high"
)

// Decision is the ModelSelector's output: the chosen model, why, and its
// cost bucket.
type Decision struct {
	Model     string
	Rationale string
	Cost      CostBucket
}

// Stage distinguishes coder selection from fixer selection, since fixer
// selection is independent of complexity/effort (spec.md §4.5).
type Stage string

const (
	StageCoder Stage = "coder"
	StageFixer Stage = "fixer"
)

// Select is the pure ModelSelector contract. For Complexity XL it returns
// ComplexityTooHigh unless subtaskFlag is true (the caller has already
// routed to decomposition, so an XL subtask with subtaskFlag=true is
// re-scored as if it were the subtask's own declared complexity by the
// caller — Select itself never downgrades XL silently).
func Select(cfg config.ModelSelectionConfig, stage Stage, complexity task.Complexity, effort task.Effort, attemptCount int, subtaskFlag bool) (Decision, error) {
	if complexity == task.ComplexityXL && !subtaskFlag {
		return Decision{}, cerr.Newf(cerr.ComplexityTooHigh, "", false,
			"complexity XL requires decomposition before model selection; no subtask flag set")
	}

	if stage == StageFixer {
		return fixerDecision(cfg, attemptCount), nil
	}
	return coderDecision(cfg, complexity, effort, attemptCount), nil
}

func coderDecision(cfg config.ModelSelectionConfig, complexity task.Complexity, effort task.Effort, attemptCount int) Decision {
	stage := stageModelsFor(cfg.Coder, complexity)
	tier := tierModelsFor(stage, effort)
	model, cost := escalate(tier, attemptCount)
	rationale := fmt.Sprintf("coder: complexity=%s effort=%s attempt=%d -> %s", complexity, effort, attemptCount, model)
	return Decision{Model: model, Rationale: rationale, Cost: cost}
}

// stageModelsFor picks the complexity-indexed tier table (spec.md §4.5:
// "entries are keyed by stage x complexity x effort"). XS and S have their
// own rows; every other complexity, including L and an XL subtask, uses
// the M row. Select rejects XL without a subtask flag before this point.
func stageModelsFor(models config.ComplexityModels, complexity task.Complexity) config.StageModels {
	switch complexity {
	case task.ComplexityXS:
		return models.XS
	case task.ComplexityS:
		return models.S
	default:
		return models.M
	}
}

func fixerDecision(cfg config.ModelSelectionConfig, attemptCount int) Decision {
	// Fixer always starts at the strong-reasoning tier irrespective of
	// complexity/effort, per spec.md §4.5's "error model expects the fixer
	// to be at least as capable as the coder that produced the error". We
	// key off StageModels.High, whose Base tier is configured as
	// strong-reasoning by DefaultModelSelection.
	model, cost := escalate(cfg.Fixer.High, attemptCount)
	rationale := fmt.Sprintf("fixer: attempt=%d -> %s (independent of complexity/effort)", attemptCount, model)
	return Decision{Model: model, Rationale: rationale, Cost: cost}
}

func tierModelsFor(stage config.StageModels, effort task.Effort) config.TierModels {
	switch effort {
	case task.EffortLow:
		return stage.Low
	case task.EffortHigh:
		return stage.High
	default:
		return stage.Medium
	}
}

// escalate applies spec.md §4.5's "attempt 0 uses effort-indexed tier;
// attempt 1 escalates; attempt >= 2 escalates to highest" rule, shared by
// every complexity class (XS/S/M all follow the same attempt-indexed
// escalation shape, differing only in which tier table feeds it).
func escalate(tier config.TierModels, attemptCount int) (string, CostBucket) {
	switch {
	case attemptCount <= 0:
		return tier.Base, costForModel(tier.Base, tier)
	case attemptCount == 1:
		return tier.Escalated, costForModel(tier.Escalated, tier)
	default:
		return tier.Highest, CostHigh
	}
}

func costForModel(model string, tier config.TierModels) CostBucket {
	switch model {
	case tier.Highest:
		return CostHigh
	case tier.Escalated:
		return CostMedium
	default:
		return CostLow
	}
}
