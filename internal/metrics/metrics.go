// Package metrics provides Prometheus metrics for the ledger indexer.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer. A nil *Metrics is a
// valid no-op recorder so packages can be used without wiring metrics.
type Metrics struct {
	RebuildsTotal       *prometheus.CounterVec
	RebuildDuration     prometheus.Histogram
	EventsTotal         *prometheus.CounterVec
	Entities            *prometheus.GaugeVec
	LedgerRequestsTotal *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	DetailEvictions     prometheus.Counter

	registry *prometheus.Registry
	ageOnce  sync.Once
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_rebuilds_total",
				Help: "Projection rebuilds by result.",
			},
			[]string{"result"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexer_rebuild_duration_seconds",
				Help:    "Wall time of a full projection rebuild.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_events_total",
				Help: "Folded contract events by contract and outcome.",
			},
			[]string{"contract", "outcome"},
		),
		Entities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexer_entities",
				Help: "Entities in the current snapshot by collection.",
			},
			[]string{"collection"},
		),
		LedgerRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_requests_total",
				Help: "Requests to the ledger API by operation and status.",
			},
			[]string{"operation", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Served HTTP requests by route and status code.",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		DetailEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "detail_cache_evictions_total",
				Help: "Detail views dropped from the cache by capacity or expiry.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.RebuildsTotal)
	reg.MustRegister(m.RebuildDuration)
	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.Entities)
	reg.MustRegister(m.LedgerRequestsTotal)
	reg.MustRegister(m.HTTPRequestsTotal)
	reg.MustRegister(m.HTTPRequestDuration)
	reg.MustRegister(m.DetailEvictions)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRebuild counts a rebuild and, on success, its duration.
func (m *Metrics) RecordRebuild(ok bool, seconds float64) {
	if m == nil {
		return
	}
	if !ok {
		m.RebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RebuildsTotal.WithLabelValues("ok").Inc()
	m.RebuildDuration.Observe(seconds)
}

// AddEvents adds n folded events for contract with the given outcome
// (applied, skipped, unknown, duplicate, gated, orphan).
func (m *Metrics) AddEvents(contract, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsTotal.WithLabelValues(contract, outcome).Add(float64(n))
}

// SetEntities sets the size of one snapshot collection.
func (m *Metrics) SetEntities(collection string, n int) {
	if m == nil {
		return
	}
	m.Entities.WithLabelValues(collection).Set(float64(n))
}

// RecordLedgerRequest counts one ledger API request.
func (m *Metrics) RecordLedgerRequest(operation, status string) {
	if m == nil {
		return
	}
	m.LedgerRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTP counts one served request and observes its latency.
func (m *Metrics) RecordHTTP(route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordDetailEviction counts one detail view leaving the cache.
func (m *Metrics) RecordDetailEviction() {
	if m == nil {
		return
	}
	m.DetailEvictions.Inc()
}

// WatchSnapshotAge exports indexer_snapshot_age_seconds, read from age on
// every scrape. Only the first call registers the gauge.
func (m *Metrics) WatchSnapshotAge(age func() float64) {
	if m == nil || age == nil {
		return
	}
	m.ageOnce.Do(func() {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "indexer_snapshot_age_seconds",
				Help: "Seconds since the cached snapshot was built; -1 before the first build.",
			},
			age,
		))
	})
}
