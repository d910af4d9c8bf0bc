// Package metrics defines the Prometheus collectors used by the search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics
// is valid; its recording methods do nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DocsDeletedTotal     prometheus.Counter
	IndexRejectedTotal   *prometheus.CounterVec
	CompactionsTotal     prometheus.Counter
	PostingsPurgedTotal  prometheus.Counter
	IngestEventsTotal    *prometheus.CounterVec
	AnalyticsDropped     prometheus.Counter
	ActiveSessions       prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them, together with the Go and
// process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by query kind and result type (hit, zero_result, error).",
			},
			[]string{"kind", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by query kind and cache status.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind", "cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of matching documents per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents committed to an index.",
			},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_deleted_total",
				Help: "Total documents tombstoned.",
			},
		),
		IndexRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rejected_total",
				Help: "Documents refused by the index by reason (invalid, capacity).",
			},
			[]string{"reason"},
		),
		CompactionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_compactions_total",
				Help: "Total compactions that purged at least one posting.",
			},
		),
		PostingsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_postings_purged_total",
				Help: "Total postings of deleted documents physically removed.",
			},
		),
		IngestEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_total",
				Help: "Kafka ingest events by action and status.",
			},
			[]string{"action", "status"},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the collector buffer was full.",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_sessions",
				Help: "Number of live session-scoped indexes.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsDeletedTotal,
		m.IndexRejectedTotal,
		m.CompactionsTotal,
		m.PostingsPurgedTotal,
		m.IngestEventsTotal,
		m.AnalyticsDropped,
		m.ActiveSessions,
		m.CircuitBreakerState,
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSearch records one executed search.
func (m *Metrics) ObserveSearch(kind string, cacheHit bool, totalHits int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	resultType := "hit"
	switch {
	case err != nil:
		resultType = "error"
	case totalHits == 0:
		resultType = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(kind, resultType).Inc()
	if err != nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	m.SearchLatency.WithLabelValues(kind, cacheStatus).Observe(elapsed.Seconds())
	m.SearchResultsCount.Observe(float64(totalHits))
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) DocumentsIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocsIndexedTotal.Add(float64(n))
}

func (m *Metrics) DocumentDeleted() {
	if m == nil {
		return
	}
	m.DocsDeletedTotal.Inc()
}

func (m *Metrics) DocumentRejected(reason string) {
	if m == nil {
		return
	}
	m.IndexRejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Compacted(purged int) {
	if m == nil || purged <= 0 {
		return
	}
	m.CompactionsTotal.Inc()
	m.PostingsPurgedTotal.Add(float64(purged))
}

func (m *Metrics) IngestEvent(action, status string) {
	if m == nil {
		return
	}
	m.IngestEventsTotal.WithLabelValues(action, status).Inc()
}

func (m *Metrics) AnalyticsEventDropped() {
	if m == nil {
		return
	}
	m.AnalyticsDropped.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
