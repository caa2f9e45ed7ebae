// Package metrics exposes the Prometheus collectors shared by the fetcher and
// the worker pipeline. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache tiers reported by IncCacheHit.
const (
	TierMemory = "memory"
	TierDisk   = "disk"
)

// Upsert outcomes reported by IncUpsert.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeAppended = "appended"
	OutcomeFailed   = "failed"
)

// Metrics bundles Prometheus collectors for a harvest run.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	CacheHitsTotal  *prometheus.CounterVec
	UpsertsTotal    *prometheus.CounterVec
	AdapterFailures prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_requests_total",
			Help: "Total transport requests issued, by request category.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_request_duration_seconds",
			Help:    "Transport latency for fetch attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetch_errors_total",
			Help: "Total number of failed fetch attempts by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cache_hits_total",
			Help: "Fetches served from the raw-response cache, by tier.",
		},
		[]string{"tier"},
	)
	upserts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_upserted_total",
			Help: "Records written to the output sink, by outcome.",
		},
		[]string{"outcome"},
	)
	adapterFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_adapter_failures_total",
			Help: "Adapter invocations that returned an error or panicked.",
		},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_queue_depth",
			Help: "Items waiting in the work queue.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, cacheHits, upserts, adapterFailures, queueDepth)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		CacheHitsTotal:  cacheHits,
		UpsertsTotal:    upserts,
		AdapterFailures: adapterFailures,
		QueueDepth:      queueDepth,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a transport call duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncCacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncUpsert(outcome string) {
	if m == nil {
		return
	}
	m.UpsertsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAdapterFailure() {
	if m == nil {
		return
	}
	m.AdapterFailures.Inc()
}

// SetQueueDepth records the current number of pending queue items.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
