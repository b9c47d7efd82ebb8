package permcache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache traffic and invalidation fan-outs.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	storeErrors   prometheus.Counter
	invalidations prometheus.Counter
}

// NewMetrics registers the permcache counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_authz_cache_hits_total",
			Help: "Permission cache hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_authz_cache_misses_total",
			Help: "Permission cache misses that triggered recomputation.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_authz_cache_store_errors_total",
			Help: "Cache store failures handled by failing open.",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_authz_cache_invalidations_total",
			Help: "Per-user cache invalidations fanned out.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.storeErrors, m.invalidations)
	}
	return m
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) storeError() {
	if m != nil {
		m.storeErrors.Inc()
	}
}

func (m *Metrics) invalidation() {
	if m != nil {
		m.invalidations.Inc()
	}
}
