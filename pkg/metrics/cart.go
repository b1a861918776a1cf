package metrics

import "github.com/prometheus/client_golang/prometheus"

// Hydration outcomes recorded when a cart store loads its persisted snapshot.
const (
	HydrationLoaded  = "loaded"
	HydrationEmpty   = "empty"
	HydrationCorrupt = "corrupt"
	HydrationError   = "error"
)

// CartMetrics tracks cart mutations, snapshot persistence and live sessions.
type CartMetrics struct {
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	hydrations      *prometheus.CounterVec
	sessions        prometheus.Gauge
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_mutations_total",
		Help:      "Cart actions applied by the reducer.",
	}, []string{"action"})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_persist_failures_total",
		Help:      "Cart snapshot writes that failed.",
	}, []string{"backend"})
	hydrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_hydrations_total",
		Help:      "Cart stores hydrated from storage, by outcome.",
	}, []string{"outcome"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cart_sessions_active",
		Help:      "Cart stores currently held in memory.",
	})
	reg.MustRegister(mutations, persistFailures, hydrations, sessions)
	return &CartMetrics{
		mutations:       mutations,
		persistFailures: persistFailures,
		hydrations:      hydrations,
		sessions:        sessions,
	}
}

// IncMutation counts one applied cart action.
func (c *CartMetrics) IncMutation(action string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(action)).Inc()
}

// IncPersistFailure counts a failed snapshot write for the storage backend.
func (c *CartMetrics) IncPersistFailure(backend string) {
	if c == nil || c.persistFailures == nil {
		return
	}
	c.persistFailures.WithLabelValues(normalizeLabel(backend)).Inc()
}

// IncHydration counts a store hydration by outcome.
func (c *CartMetrics) IncHydration(outcome string) {
	if c == nil || c.hydrations == nil {
		return
	}
	c.hydrations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetSessions records the number of live cart stores.
func (c *CartMetrics) SetSessions(n int) {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.Set(float64(n))
}
