package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the authorization engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Provider metrics
	ProviderFetchesTotal  *prometheus.CounterVec
	ProviderFetchDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"manager", "source", "result"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantor_decision_duration_seconds",
				Help:    "Authorization decision duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"manager"},
		),

		ProviderFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_provider_fetches_total",
				Help: "Total number of provider fetches",
			},
			[]string{"provider", "operation", "status"},
		),
		ProviderFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantor_provider_fetch_duration_seconds",
				Help:    "Provider fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_cache_invalidations_total",
				Help: "Total number of cache invalidations",
			},
			[]string{"cache", "scope"},
		),
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.ProviderFetchesTotal,
		m.ProviderFetchDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
	)

	return m
}

// RecordDecision counts one authorization decision
func (m *Metrics) RecordDecision(manager, source string, granted bool, started time.Time) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.DecisionsTotal.WithLabelValues(manager, source, result).Inc()
	m.DecisionDuration.WithLabelValues(manager).Observe(time.Since(started).Seconds())
}

// RecordFetch counts one provider fetch
func (m *Metrics) RecordFetch(provider, operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ProviderFetchesTotal.WithLabelValues(provider, operation, status).Inc()
	m.ProviderFetchDuration.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordInvalidation counts a cache invalidation of the given scope
func (m *Metrics) RecordInvalidation(cache, scope string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(cache, scope).Inc()
}
