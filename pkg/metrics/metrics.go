// Package metrics exports Prometheus counters for batches, the analysis
// cache, and the job queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spawn-mcp/adshipper/pkg/types"
)

const namespace = "adshipper"

// Metrics holds every adshipper collector.
type Metrics struct {
	RowsTotal      *prometheus.CounterVec
	RowDuration    *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
	AdSetsResolved *prometheus.CounterVec
	JobTransitions *prometheus.CounterVec
	RowsSkipped    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows finished by terminal status",
		}, []string{"status"}),
		RowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "row_duration_seconds",
			Help:      "Wall time to ship one row",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_lookups_total",
			Help:      "Analysis cache lookups by result",
		}, []string{"result"}),
		AdSetsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adsets_resolved_total",
			Help:      "Ad set resolutions by outcome",
		}, []string{"outcome"}),
		JobTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Pipeline job status transitions by target status",
		}, []string{"status"}),
		RowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Candidate rows skipped because they already shipped",
		}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler serves the registry m was created on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit()  { m.CacheLookups.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss() { m.CacheLookups.WithLabelValues("miss").Inc() }

func (m *Metrics) RowFinished(status types.RowStatus, d time.Duration) {
	m.RowsTotal.WithLabelValues(string(status)).Inc()
	m.RowDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (m *Metrics) AdSetResolved(created bool) {
	outcome := "found"
	if created {
		outcome = "created"
	}
	m.AdSetsResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobTransition(status types.JobStatus) {
	m.JobTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RowSkipped() { m.RowsSkipped.Inc() }
