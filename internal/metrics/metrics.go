// Package metrics defines the minimal Prometheus surface the orchestration
// core exposes: gate/transition/consensus/batch counters plus one
// phase-duration histogram. No HTTP handler is wired here (spec.md's
// Non-goals exclude an observability dashboard); cmd/cascade is free to
// mount promhttp.Handler() against the returned *prometheus.Registry.
// Grounded on jordigilh-kubernaut's use of an explicit
// *prometheus.Registry (rather than the global default) so tests can spin
// up an isolated registry per run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the orchestration core emits into, plus
// the *prometheus.Registry they're registered against.
type Registry struct {
	reg *prometheus.Registry

	GateFailures       *prometheus.CounterVec
	StateTransitions   *prometheus.CounterVec
	ConsensusDecisions *prometheus.CounterVec
	BatchesFormed      prometheus.Counter
	BatchConflicts     prometheus.Counter
	PhaseDuration      *prometheus.HistogramVec
}

// New builds a Registry with every metric registered against a fresh
// *prometheus.Registry (never the global default, so tests don't collide).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		GateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "gate_failures_total",
			Help:      "Count of gate evaluations that denied a phase transition, by gate name.",
		}, []string{"gate"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "state_transitions_total",
			Help:      "Count of task status transitions, by from and to status.",
		}, []string{"from", "to"}),
		ConsensusDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "consensus_decisions_total",
			Help:      "Count of multi-agent consensus decisions, by scoring strategy.",
		}, []string{"strategy"}),
		BatchesFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "batches_formed_total",
			Help:      "Count of batches formed by the BatchCoordinator.",
		}),
		BatchConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "batch_conflicts_total",
			Help:      "Count of batches that failed to combine due to an overlapping-hunk conflict.",
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cascade",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of one orchestrator phase handler invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}

	reg.MustRegister(r.GateFailures, r.StateTransitions, r.ConsensusDecisions, r.BatchesFormed, r.BatchConflicts, r.PhaseDuration)
	return r
}

// Registerer exposes the underlying *prometheus.Registry for a caller that
// wants to mount promhttp.HandlerFor against it or register additional
// collectors.
func (r *Registry) Registerer() *prometheus.Registry {
	return r.reg
}
