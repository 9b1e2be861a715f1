package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/metrics"
)

func TestGateFailuresIncrements(t *testing.T) {
	r := metrics.New()
	r.GateFailures.WithLabelValues("before_diff").Inc()
	r.GateFailures.WithLabelValues("before_diff").Inc()

	require.InDelta(t, 2, testutil.ToFloat64(r.GateFailures.WithLabelValues("before_diff")), 0.001)
}

func TestStateTransitionsLabeledByFromTo(t *testing.T) {
	r := metrics.New()
	r.StateTransitions.WithLabelValues("coding", "coding_done").Inc()

	require.InDelta(t, 1, testutil.ToFloat64(r.StateTransitions.WithLabelValues("coding", "coding_done")), 0.001)
	require.InDelta(t, 0, testutil.ToFloat64(r.StateTransitions.WithLabelValues("coding", "fixing")), 0.001)
}

func TestPhaseDurationObserves(t *testing.T) {
	r := metrics.New()
	r.PhaseDuration.WithLabelValues("coding").Observe(1.5)

	count := testutil.CollectAndCount(r.PhaseDuration)
	require.Equal(t, 1, count)
}
