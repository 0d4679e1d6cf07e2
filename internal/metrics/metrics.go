// Package metrics provides Prometheus metrics for the ingestion pipeline.
//
// Counters and histograms cover the job ledger (finalized jobs by type and
// status, stage durations), the reconciliation engine (outcomes by kind) and
// the fetcher (requests by result). All recording methods are nil-safe, so a
// component built without metrics simply records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clubsync"

// Metrics contains the Prometheus collectors for club-sync
type Metrics struct {
	registry *prometheus.Registry

	// Job ledger
	jobsEnqueued  *prometheus.CounterVec
	jobsFinalized *prometheus.CounterVec
	jobsReclaimed prometheus.Counter
	stageDuration *prometheus.HistogramVec

	// Reconciliation
	reconcileOutcomes *prometheus.CounterVec
	dedupActions      *prometheus.CounterVec

	// Fetching
	fetchRequests *prometheus.CounterVec

	collectors []prometheus.Collector
}

// New creates metrics and registers them with registry
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewDefault creates a fresh registry carrying club-sync metrics plus the Go
// runtime and process collectors
func NewDefault() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return New(reg)
}

func (m *Metrics) initMetrics() {
	m.jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs added to the ledger",
		},
		[]string{"type"},
	)
	m.jobsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finalized_total",
			Help:      "Jobs that reached a terminal state",
		},
		[]string{"type", "status"},
	)
	m.jobsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reclaimed_total",
			Help:      "RUNNING jobs failed after their lease expired",
		},
	)
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution time",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"type", "stage", "result"},
	)
	m.reconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Reconciled candidates by entity kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.dedupActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_actions_total",
			Help:      "Entities merged or deleted by the dedup pass",
		},
		[]string{"kind", "action"},
	)
	m.fetchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Source fetch attempts by result",
		},
		[]string{"result"},
	)

	m.collectors = []prometheus.Collector{
		m.jobsEnqueued,
		m.jobsFinalized,
		m.jobsReclaimed,
		m.stageDuration,
		m.reconcileOutcomes,
		m.dedupActions,
		m.fetchRequests,
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// Registry returns the registry the metrics were registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobEnqueued counts one enqueue
func (m *Metrics) JobEnqueued(jobType string) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(jobType).Inc()
}

// JobFinalized counts a job reaching a terminal status
func (m *Metrics) JobFinalized(jobType, status string) {
	if m == nil {
		return
	}
	m.jobsFinalized.WithLabelValues(jobType, status).Inc()
}

// JobsReclaimed counts lease-expired jobs
func (m *Metrics) JobsReclaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsReclaimed.Add(float64(n))
}

// ObserveStage records one stage run
func (m *Metrics) ObserveStage(jobType, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stageDuration.WithLabelValues(jobType, stage, result).Observe(d.Seconds())
}

// ReconcileOutcome counts one reconciled candidate
func (m *Metrics) ReconcileOutcome(kind, outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.WithLabelValues(kind, outcome).Inc()
}

// DedupAction counts one merge or delete
func (m *Metrics) DedupAction(kind, action string) {
	if m == nil {
		return
	}
	m.dedupActions.WithLabelValues(kind, action).Inc()
}

// FetchResult counts one fetch attempt; result is "ok", "retry" or "error"
func (m *Metrics) FetchResult(result string) {
	if m == nil {
		return
	}
	m.fetchRequests.WithLabelValues(result).Inc()
}
