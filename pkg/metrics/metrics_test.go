package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "travel", "notifications")

	m.FeedEventsApplied.WithLabelValues("INSERT").Inc()
	m.ActiveSessions.Set(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "travel_notifications_feed_events_applied_total")
	assert.Contains(t, names, "travel_notifications_active_sessions")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions))
}

func TestUnregisteredInstancesDoNotCollide(t *testing.T) {
	a := New("travel")
	b := New("travel")
	a.IntakeSynthesized.WithLabelValues("payment").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.IntakeSynthesized.WithLabelValues("payment")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.IntakeSynthesized.WithLabelValues("payment")))
}
