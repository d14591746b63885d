// Package metrics is the ambient Prometheus surface named in SPEC_FULL.md's
// DOMAIN STACK: node latency histograms and plan step counters. Grounded on
// the teacher's pkg/observability/metrics.go (one prometheus.Registry per
// process, CounterVec/HistogramVec per concern, a constructor that no-ops
// when metrics are disabled) — generalized from Hector's much larger
// agent/LLM/tool/memory/session/HTTP/RAG metric surface down to the two
// concerns this domain's workflow driver and planner actually produce.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this process registers. A nil *Metrics is
// valid and every method on it is a no-op, so callers never need a
// separate "metrics enabled" branch.
type Metrics struct {
	registry *prometheus.Registry

	nodeLatency   *prometheus.HistogramVec
	nodeErrors    *prometheus.CounterVec
	planSteps     *prometheus.CounterVec
	activeSession prometheus.Gauge
}

// New builds a Metrics instance registered on a fresh prometheus.Registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.nodeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "queryflow",
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Execution duration of one workflow node run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"node"},
	)
	m.nodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryflow",
			Subsystem: "workflow",
			Name:      "node_errors_total",
			Help:      "Count of workflow node executions that returned an error, by error kind.",
		},
		[]string{"node", "error_kind"},
	)
	m.planSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryflow",
			Subsystem: "planner",
			Name:      "plan_steps_total",
			Help:      "Count of plan steps produced by the planner, by agent type.",
		},
		[]string{"agent_type"},
	)
	m.activeSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "queryflow",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of chat sessions currently attached to a connection.",
		},
	)

	m.registry.MustRegister(m.nodeLatency, m.nodeErrors, m.planSteps, m.activeSession)
	return m
}

// Registry exposes the underlying prometheus.Registry, e.g. for
// promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveNodeDuration records how long node took to execute.
func (m *Metrics) ObserveNodeDuration(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeLatency.WithLabelValues(node).Observe(d.Seconds())
}

// RecordNodeError increments the error counter for node/kind.
func (m *Metrics) RecordNodeError(node, errorKind string) {
	if m == nil {
		return
	}
	m.nodeErrors.WithLabelValues(node, errorKind).Inc()
}

// RecordPlanStep increments the step counter for agentType.
func (m *Metrics) RecordPlanStep(agentType string) {
	if m == nil {
		return
	}
	m.planSteps.WithLabelValues(agentType).Inc()
}

// SetActiveSessions sets the current attached-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSession.Set(float64(n))
}
