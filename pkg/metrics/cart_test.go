package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCartMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetrics(reg)
	m.IncMutation("add_item")
	m.IncMutation("add_item")
	m.IncPersistFailure("redis")
	m.IncHydration(HydrationCorrupt)
	m.SetSessions(4)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "cornman_cart_mutations_total", "action", "add_item")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "cornman_cart_persist_failures_total", "backend", "redis")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "cornman_cart_hydrations_total", "outcome", HydrationCorrupt)
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sessions := findMetricFamily(mfs, "cornman_cart_sessions_active")
	require.NotNil(t, sessions)
	require.Equal(t, 4.0, sessions.GetMetric()[0].GetGauge().GetValue())
}

func TestRelayMetricsExportsDispatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)
	m.ObserveDispatch("delivered", OutcomeFailure, 120*time.Millisecond)
	m.IncInbound("new_subscriber", OutcomeSuccess)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "cornman_relay_dispatch_total", "outcome", OutcomeFailure)
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "cornman_relay_dispatch_duration_seconds", "event", "delivered")
	require.NoError(t, err)
	require.Greater(t, sum, 0.0)

	got, err = fetchCounterValue(mfs, "cornman_manychat_webhooks_total", "event", "new_subscriber")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var cart *CartMetrics
	cart.IncMutation("x")
	cart.SetSessions(1)

	var relay *RelayMetrics
	relay.ObserveDispatch("x", OutcomeSuccess, time.Second)

	NewCartMetrics(nil).IncPersistFailure("db")
	NewRelayMetrics(nil).IncInbound("x", OutcomeSkipped)
}
