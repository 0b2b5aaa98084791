package command

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the Command Surface's Prometheus collectors. SPEC_FULL.md's
// domain stack calls for "Executor/Pipeline operational counters and
// histograms — stage duration, permission decisions by policy, child-process
// restarts"; this is their home.
type metrics struct {
	registry *prometheus.Registry

	stageDuration      *prometheus.HistogramVec
	permissionDecision *prometheus.CounterVec
	executorRestarts   *prometheus.CounterVec
	activeExecutors    prometheus.Gauge
	activePipelines    prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "acp",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"pipeline_id", "stage_name", "status"},
	)

	m.permissionDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acp",
			Subsystem: "permission",
			Name:      "decisions_total",
			Help:      "Permission decisions made, by policy and outcome",
		},
		[]string{"policy", "decision"},
	)

	m.executorRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acp",
			Subsystem: "executor",
			Name:      "restarts_total",
			Help:      "Executor starts reusing a session id that already had a live session",
		},
		[]string{"session_id"},
	)

	m.activeExecutors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "acp", Subsystem: "executor", Name: "active",
		Help: "Number of Executors currently tracked by the Command Surface",
	})

	m.activePipelines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "acp", Subsystem: "pipeline", Name: "active_executions",
		Help: "Number of pipeline executions currently Pending or Running",
	})

	m.registry.MustRegister(m.stageDuration, m.permissionDecision, m.executorRestarts, m.activeExecutors, m.activePipelines)
	return m
}

func (m *metrics) observeStage(pipelineID, stageName, status string, seconds float64) {
	m.stageDuration.WithLabelValues(pipelineID, stageName, status).Observe(seconds)
}

func (m *metrics) recordPermissionDecision(policy, decision string) {
	m.permissionDecision.WithLabelValues(policy, decision).Inc()
}

func (m *metrics) recordRestart(sessionID string) {
	m.executorRestarts.WithLabelValues(sessionID).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
