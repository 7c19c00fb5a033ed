package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

const namespace = "scan_triage"

// LifecycleMetrics implements ports.LifecycleMetrics on Prometheus collectors.
type LifecycleMetrics struct {
	gatherer prometheus.Gatherer
	service  string

	transitionsTotal      *prometheus.CounterVec
	classificationsTotal  *prometheus.CounterVec
	classificationSeconds *prometheus.HistogramVec
	sweepRunsTotal        *prometheus.CounterVec
	sweepDuration         *prometheus.HistogramVec
	sweepAffectedTotal    *prometheus.CounterVec
	documents             *prometheus.GaugeVec
	breakerOpen           *prometheus.GaugeVec
}

// NewLifecycleMetrics registers the lifecycle collectors on registry. A nil
// registry gets a private one, which is what the one-shot CLI uses.
func NewLifecycleMetrics(service string, registry *prometheus.Registry) *LifecycleMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Committed document status transitions.",
		},
		[]string{"service", "from", "to"},
	)
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Classification attempts by routing outcome.",
		},
		[]string{"service", "outcome"},
	)
	classificationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classification_duration_seconds",
			Help:      "End-to-end classification duration including the file move.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"service", "outcome"},
	)
	sweepRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeper passes by job and status.",
		},
		[]string{"service", "job", "status"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "duration_seconds",
			Help:      "Sweeper pass duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "job"},
	)
	sweepAffectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "affected_documents_total",
			Help:      "Documents created, removed or purged by sweepers.",
		},
		[]string{"service", "job"},
	)
	documents := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "documents",
			Help:      "Tracked documents by status.",
		},
		[]string{"service", "status"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_open",
			Help:      "1 when the circuit breaker of an operation is open or half-open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		transitionsTotal,
		classificationsTotal,
		classificationSeconds,
		sweepRunsTotal,
		sweepDuration,
		sweepAffectedTotal,
		documents,
		breakerOpen,
	)

	return &LifecycleMetrics{
		gatherer:              registry,
		service:               service,
		transitionsTotal:      transitionsTotal,
		classificationsTotal:  classificationsTotal,
		classificationSeconds: classificationSeconds,
		sweepRunsTotal:        sweepRunsTotal,
		sweepDuration:         sweepDuration,
		sweepAffectedTotal:    sweepAffectedTotal,
		documents:             documents,
		breakerOpen:           breakerOpen,
	}
}

func (m *LifecycleMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *LifecycleMetrics) ObserveTransition(from, to domain.DocumentStatus) {
	m.transitionsTotal.WithLabelValues(m.service, string(from), string(to)).Inc()
}

func (m *LifecycleMetrics) ObserveClassification(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.classificationsTotal.WithLabelValues(m.service, outcome).Inc()
	m.classificationSeconds.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *LifecycleMetrics) ObserveSweep(job string, duration time.Duration, affected int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sweepRunsTotal.WithLabelValues(m.service, job, status).Inc()
	m.sweepDuration.WithLabelValues(m.service, job).Observe(duration.Seconds())
	if affected > 0 {
		m.sweepAffectedTotal.WithLabelValues(m.service, job).Add(float64(affected))
	}
}

// SetStatusCounts sets every status gauge, zeroing the ones absent from counts.
func (m *LifecycleMetrics) SetStatusCounts(counts map[domain.DocumentStatus]int) {
	for _, status := range domain.AllStatuses() {
		m.documents.WithLabelValues(m.service, string(status)).Set(float64(counts[status]))
	}
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *LifecycleMetrics) ObserveBreakerState(operation, _, to string) {
	value := 0.0
	if to != "closed" {
		value = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(value)
}
