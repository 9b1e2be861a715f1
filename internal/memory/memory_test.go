package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/memory"
	memstore "github.com/avery-holt/cascade/internal/store/memory"
	"github.com/avery-holt/cascade/internal/task"
)

func TestObserveRecordsObservation(t *testing.T) {
	s := memstore.New()
	m := memory.New(s)
	taskID := uuid.New()

	require.NoError(t, m.Observe(context.Background(), taskID, "coder", task.ObservationDecision, "chose approach A", "planning"))

	obs, err := s.GetObservations(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "chose approach A", obs[0].Content)
}

func TestLearnOrReinforceCreatesNewPatternOnFirstUse(t *testing.T) {
	s := memstore.New()
	m := memory.New(s)

	p, err := m.LearnOrReinforce(context.Background(), "acme/x", task.PatternFix, "missing null check", "add guard clause", 0.5)
	require.NoError(t, err)
	require.Equal(t, 0, p.SuccessCount)
	require.InDelta(t, 0.5, p.Confidence, 0.001)
}

func TestLearnOrReinforceReinforcesSimilarTrigger(t *testing.T) {
	s := memstore.New()
	m := memory.New(s)

	first, err := m.LearnOrReinforce(context.Background(), "acme/x", task.PatternFix, "missing null check on user input", "add guard clause", 0.5)
	require.NoError(t, err)

	second, err := m.LearnOrReinforce(context.Background(), "acme/x", task.PatternFix, "missing null check on user input", "add guard clause", 0.5)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, second.SuccessCount)
	require.Greater(t, second.Confidence, 0.5)
}

func TestRelevantPatternsSortsByConfidenceDescending(t *testing.T) {
	s := memstore.New()
	m := memory.New(s)

	_, err := m.LearnOrReinforce(context.Background(), "acme/x", task.PatternConvention, "use snake_case", "rename fields", 0.3)
	require.NoError(t, err)
	_, err = m.LearnOrReinforce(context.Background(), "acme/x", task.PatternConvention, "prefer early returns", "flatten branches", 0.9)
	require.NoError(t, err)

	patterns, err := m.RelevantPatterns(context.Background(), "acme/x", task.PatternConvention)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	require.GreaterOrEqual(t, patterns[0].Confidence, patterns[1].Confidence)
}

func TestRetrieveArchivesPrefersRepoScopedOnTie(t *testing.T) {
	s := memstore.New()
	m := memory.New(s)

	require.NoError(t, m.Archive(context.Background(), "global fact", "summary", "doc", 0.5, ""))
	require.NoError(t, m.Archive(context.Background(), "repo fact", "summary", "doc", 0.5, "acme/x"))

	archives, err := m.RetrieveArchives(context.Background(), "acme/x")
	require.NoError(t, err)
	require.Len(t, archives, 2)
	require.False(t, archives[0].IsGlobal())
}
