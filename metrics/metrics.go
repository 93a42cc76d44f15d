// Package metrics holds the Prometheus collectors for the engine.
//
// Collectors are registered on a private registry owned by each Metrics value,
// so several engines (or tests) can coexist in one process. Every method is
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curata"

// Request outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotReady = "not_ready"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	filteredTotal   prometheus.Counter
	indexEntries    *prometheus.GaugeVec
	hydrationState  prometheus.Gauge
	rebuildsTotal   prometheus.Counter
	rebuildDuration prometheus.Histogram
	itemsIngested   prometheus.Counter
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of served requests by operation and outcome",
		}, []string{"op", "outcome"}),

		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		filteredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filtered_candidates_total",
			Help:      "Total number of recalled candidates removed by exclusion sets",
		}),

		indexEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Current number of entries per index",
		}, []string{"index"}),

		hydrationState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hydration_state",
			Help:      "Current hydrator lifecycle state",
		}),

		rebuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Total number of index rebuilds from the metadata store",
		}),

		rebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),

		itemsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_ingested_total",
			Help:      "Total number of items added through ingestion",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one request.
func (m *Metrics) ObserveRequest(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op, outcome).Inc()
	m.requestLatency.WithLabelValues(op).Observe(d.Seconds())
}

// AddFiltered counts candidates removed by an exclusion set.
func (m *Metrics) AddFiltered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filteredTotal.Add(float64(n))
}

// SetIndexEntries reports the size of the named index.
func (m *Metrics) SetIndexEntries(index string, n int) {
	if m == nil {
		return
	}
	m.indexEntries.WithLabelValues(index).Set(float64(n))
}

// SetHydrationState reports the hydrator state as its ordinal.
func (m *Metrics) SetHydrationState(state int) {
	if m == nil {
		return
	}
	m.hydrationState.Set(float64(state))
}

// ObserveRebuild records a completed rebuild.
func (m *Metrics) ObserveRebuild(d time.Duration) {
	if m == nil {
		return
	}
	m.rebuildsTotal.Inc()
	m.rebuildDuration.Observe(d.Seconds())
}

// AddIngested counts items added through ingestion.
func (m *Metrics) AddIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsIngested.Add(float64(n))
}
