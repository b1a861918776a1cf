package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay dispatch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// RelayMetrics records notification relay and inbound webhook traffic.
type RelayMetrics struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	inbound    *prometheus.CounterVec
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_dispatch_total",
		Help:      "Order status notifications forwarded to ManyChat, by outcome.",
	}, []string{"event", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "relay_dispatch_duration_seconds",
		Help:      "Latency of ManyChat flow calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event"})
	inbound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "manychat_webhooks_total",
		Help:      "Inbound ManyChat webhook events, by outcome.",
	}, []string{"event", "outcome"})
	reg.MustRegister(dispatches, latency, inbound)
	return &RelayMetrics{
		dispatches: dispatches,
		latency:    latency,
		inbound:    inbound,
	}
}

// ObserveDispatch records one relay attempt.
func (r *RelayMetrics) ObserveDispatch(event, outcome string, duration time.Duration) {
	if r == nil || r.dispatches == nil {
		return
	}
	event = normalizeLabel(event)
	r.dispatches.WithLabelValues(event, normalizeLabel(outcome)).Inc()
	if duration > 0 {
		r.latency.WithLabelValues(event).Observe(duration.Seconds())
	}
}

// IncInbound records one processed inbound webhook.
func (r *RelayMetrics) IncInbound(event, outcome string) {
	if r == nil || r.inbound == nil {
		return
	}
	r.inbound.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
