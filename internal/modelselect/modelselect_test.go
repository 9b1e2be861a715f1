package modelselect_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/modelselect"
	"github.com/avery-holt/cascade/internal/task"
)

func TestSelectEscalatesAcrossAttempts(t *testing.T) {
	cfg := config.DefaultModelSelection()

	d0, err := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityM, task.EffortMedium, 0, false)
	require.NoError(t, err)
	require.Equal(t, "medium", d0.Model)

	d1, err := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityM, task.EffortMedium, 1, false)
	require.NoError(t, err)
	require.Equal(t, "strong-reasoning", d1.Model)

	d2, err := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityM, task.EffortMedium, 2, false)
	require.NoError(t, err)
	require.Equal(t, "highest", d2.Model)
	require.Equal(t, modelselect.CostHigh, d2.Cost)
}

// TestSelectIndexesOnComplexityNotJustEffort covers the (stage, complexity,
// effort) keying spec.md §4.5 requires: an M task must not fall back to XS's
// tier table merely because they share an effort and attempt count.
func TestSelectIndexesOnComplexityNotJustEffort(t *testing.T) {
	cfg := config.DefaultModelSelection()

	xs, err := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityXS, task.EffortLow, 0, false)
	require.NoError(t, err)
	require.Equal(t, "nano", xs.Model)

	m, err := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityM, task.EffortLow, 0, false)
	require.NoError(t, err)
	require.Equal(t, "medium", m.Model)
	require.NotEqual(t, xs.Model, m.Model)
}

func TestSelectRejectsXLWithoutSubtaskFlag(t *testing.T) {
	cfg := config.DefaultModelSelection()
	_, err := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityXL, task.EffortMedium, 0, false)
	require.Error(t, err)
}

func TestSelectFixerIsIndependentOfComplexityAndEffort(t *testing.T) {
	cfg := config.DefaultModelSelection()
	forXS, err := modelselect.Select(cfg, modelselect.StageFixer, task.ComplexityXS, task.EffortLow, 0, false)
	require.NoError(t, err)
	forXL, err := modelselect.Select(cfg, modelselect.StageFixer, task.ComplexityXL, task.EffortHigh, 0, true)
	require.NoError(t, err)
	require.Equal(t, forXS.Model, forXL.Model)
	require.Equal(t, "strong-reasoning", forXS.Model)
}

// TestSelectIsPure covers invariant 8 (spec.md §8): calling Select twice
// with identical inputs must produce an identical Decision.
func TestSelectIsPure(t *testing.T) {
	cfg := config.DefaultModelSelection()
	d1, err1 := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityS, task.EffortHigh, 1, false)
	d2, err2 := modelselect.Select(cfg, modelselect.StageCoder, task.ComplexityS, task.EffortHigh, 1, false)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, d1, d2)
}
