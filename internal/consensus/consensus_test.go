package consensus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/consensus"
)

type fakeCoder struct {
	diffs map[string]string
	fail  map[string]bool
}

func (f fakeCoder) Run(ctx context.Context, in agent.Input) (agent.CoderOutput, error) {
	if f.fail[in.Model] {
		return agent.CoderOutput{}, errors.New("boom")
	}
	return agent.CoderOutput{Diff: f.diffs[in.Model], CommitMessage: "fix"}, nil
}

func TestRunCodersFansOutAndPreservesVariantOrder(t *testing.T) {
	coder := fakeCoder{diffs: map[string]string{"a": "diff-a", "b": "diff-b", "c": "diff-c"}}
	variants := []agent.Variant{{Name: "v1", Model: "a"}, {Name: "v2", Model: "b"}, {Name: "v3", Model: "c"}}

	candidates, err := consensus.RunCoders(context.Background(), coder, agent.Input{}, variants)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	require.Equal(t, "diff-a", candidates[0].Diff)
	require.Equal(t, "diff-b", candidates[1].Diff)
	require.Equal(t, "diff-c", candidates[2].Diff)
}

func TestRunCodersCapturesPerCandidateError(t *testing.T) {
	coder := fakeCoder{diffs: map[string]string{"a": "diff-a"}, fail: map[string]bool{"b": true}}
	variants := []agent.Variant{{Name: "v1", Model: "a"}, {Name: "v2", Model: "b"}}

	candidates, err := consensus.RunCoders(context.Background(), coder, agent.Input{}, variants)
	require.NoError(t, err)
	require.NoError(t, candidates[0].Err)
	require.Error(t, candidates[1].Err)
}

func TestScoreHeuristicFailedCandidateScoresZero(t *testing.T) {
	candidates := []consensus.Candidate{
		{ID: "v1", Model: "a"},
		{ID: "v2", Model: "b", Err: errors.New("boom")},
	}
	inputs := []consensus.HeuristicInputs{
		{ValidationPassed: true, SyntacticallyValid: true, DoDCoverage: 1, DiffLines: 10, ExpectedDiffLines: 10},
		{ValidationPassed: true, SyntacticallyValid: true, DoDCoverage: 1, DiffLines: 10, ExpectedDiffLines: 10},
	}
	decision := consensus.ScoreHeuristic(candidates, inputs)
	require.Equal(t, "a", decision.Winner.Candidate.Model)
	require.Len(t, decision.Losers, 1)
	require.Equal(t, 0.0, decision.Losers[0].Score)
}

func TestScoreHeuristicTieBreaksByModelNameAscending(t *testing.T) {
	candidates := []consensus.Candidate{
		{ID: "v1", Model: "zeta"},
		{ID: "v2", Model: "alpha"},
	}
	inputs := []consensus.HeuristicInputs{
		{ValidationPassed: true, DoDCoverage: 0.5},
		{ValidationPassed: true, DoDCoverage: 0.5},
	}
	decision := consensus.ScoreHeuristic(candidates, inputs)
	require.Equal(t, "alpha", decision.Winner.Candidate.Model)
}

func TestScoreReviewerAsJudgeMissingVerdictScoresZero(t *testing.T) {
	candidates := []consensus.Candidate{{ID: "v1", Model: "a"}, {ID: "v2", Model: "b"}}
	verdicts := map[string]consensus.JudgeVerdict{
		"v1": {CandidateID: "v1", Score: 0.9, Comments: "clean"},
	}
	decision := consensus.ScoreReviewerAsJudge(candidates, verdicts)
	require.Equal(t, "a", decision.Winner.Candidate.Model)
	require.Equal(t, 0.0, decision.Losers[0].Score)
}
