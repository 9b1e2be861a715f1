// Package consensus implements MultiAgentRunner + Consensus from spec.md
// §4.6: fan N agent variants out in parallel with equal inputs, then score
// and pick a winner.
package consensus

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/avery-holt/cascade/internal/agent"
)

// Candidate is one fanned-out invocation's artifact, per spec.md §4.6:
// "(id, model, diff, tokens, duration, error?)".
type Candidate struct {
	ID            string
	Model         string
	Diff          string
	CommitMessage string
	Tokens        int
	Duration      time.Duration
	Err           error
}

// MaxConcurrency bounds how many agent invocations run at once, independent
// of how many variants are requested.
const MaxConcurrency = 4

// RunCoders fans variants out to coder, all given the same in, and collects
// one Candidate per variant in variant order (not completion order).
func RunCoders(ctx context.Context, coder agent.Coder, in agent.Input, variants []agent.Variant) ([]Candidate, error) {
	candidates := make([]Candidate, len(variants))
	sem := semaphore.NewWeighted(MaxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				candidates[i] = Candidate{ID: v.Name, Model: v.Model, Err: err}
				return nil
			}
			defer sem.Release(1)

			variantIn := in
			variantIn.Model = v.Model
			start := time.Now()
			out, err := coder.Run(gctx, variantIn)
			candidates[i] = Candidate{
				ID:            v.Name,
				Model:         v.Model,
				Diff:          out.Diff,
				CommitMessage: out.CommitMessage,
				Duration:      time.Since(start),
				Err:           err,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// RunFixers is RunCoders's fixer-stage counterpart.
func RunFixers(ctx context.Context, fixer agent.Fixer, in agent.Input, variants []agent.Variant) ([]Candidate, error) {
	candidates := make([]Candidate, len(variants))
	sem := semaphore.NewWeighted(MaxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				candidates[i] = Candidate{ID: v.Name, Model: v.Model, Err: err}
				return nil
			}
			defer sem.Release(1)

			variantIn := in
			variantIn.Model = v.Model
			start := time.Now()
			out, err := fixer.Run(gctx, variantIn)
			candidates[i] = Candidate{
				ID:            v.Name,
				Model:         v.Model,
				Diff:          out.Diff,
				CommitMessage: out.CommitMessage,
				Duration:      time.Since(start),
				Err:           err,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// Strategy names the two scoring strategies spec.md §4.6 enumerates.
type Strategy string

const (
	StrategyHeuristic      Strategy = "heuristic"
	StrategyReviewerAsJudge Strategy = "reviewer_as_judge"
)

// Scored pairs a Candidate with its score and the reasoning that produced
// it.
type Scored struct {
	Candidate Candidate
	Score     float64
	Reasoning string
}

// Decision is the packaged ConsensusDecision event spec.md §4.6 describes:
// winner, losers, reasoning, totals.
type Decision struct {
	Strategy Strategy
	Winner   Scored
	Losers   []Scored
}

// HeuristicInputs carries the signals spec.md §4.6's heuristic strategy
// weighs: "validation pass/fail, syntactic validity, DoD coverage
// heuristics, and diff size normalised against plan expectations".
type HeuristicInputs struct {
	ValidationPassed bool
	SyntacticallyValid bool
	DoDCoverage      float64 // in [0,1]
	DiffLines        int
	ExpectedDiffLines int
}

func (h HeuristicInputs) score() float64 {
	var s float64
	if h.ValidationPassed {
		s += 0.4
	}
	if h.SyntacticallyValid {
		s += 0.2
	}
	s += 0.3 * clamp01(h.DoDCoverage)
	s += 0.1 * sizeFit(h.DiffLines, h.ExpectedDiffLines)
	return s
}

func sizeFit(actual, expected int) float64 {
	if expected <= 0 {
		return 1
	}
	ratio := float64(actual) / float64(expected)
	if ratio > 1 {
		ratio = 1 / ratio
	}
	return clamp01(ratio)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScoreHeuristic implements the heuristic strategy: each candidate's score
// comes from its paired HeuristicInputs (indices must align with
// candidates). A failed candidate (Err != nil) always scores 0, regardless
// of its inputs.
func ScoreHeuristic(candidates []Candidate, inputs []HeuristicInputs) Decision {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		if c.Err != nil {
			scored[i] = Scored{Candidate: c, Score: 0, Reasoning: "candidate failed: " + c.Err.Error()}
			continue
		}
		in := inputs[i]
		scored[i] = Scored{Candidate: c, Score: in.score(), Reasoning: "heuristic composite score"}
	}
	return pickWinner(StrategyHeuristic, scored)
}

// JudgeVerdict is what a reviewer-as-judge invocation supplies for one
// candidate.
type JudgeVerdict struct {
	CandidateID string
	Score       float64
	Comments    string
}

// ScoreReviewerAsJudge implements the reviewer-as-judge strategy: a
// separate agent invocation has already ranked candidates and supplied
// verdicts/comments (spec.md §4.6); this function just packages them,
// scoring failed candidates at 0 regardless of any verdict supplied for
// them.
func ScoreReviewerAsJudge(candidates []Candidate, verdicts map[string]JudgeVerdict) Decision {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		if c.Err != nil {
			scored[i] = Scored{Candidate: c, Score: 0, Reasoning: "candidate failed: " + c.Err.Error()}
			continue
		}
		v, ok := verdicts[c.ID]
		if !ok {
			scored[i] = Scored{Candidate: c, Score: 0, Reasoning: "no judge verdict supplied"}
			continue
		}
		scored[i] = Scored{Candidate: c, Score: v.Score, Reasoning: v.Comments}
	}
	return pickWinner(StrategyReviewerAsJudge, scored)
}

// pickWinner breaks ties deterministically by (score desc, model name asc),
// per spec.md §4.6.
func pickWinner(strategy Strategy, scored []Scored) Decision {
	ordered := make([]Scored, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Candidate.Model < ordered[j].Candidate.Model
	})
	if len(ordered) == 0 {
		return Decision{Strategy: strategy}
	}
	return Decision{Strategy: strategy, Winner: ordered[0], Losers: ordered[1:]}
}
