package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Feed metrics
	FeedEventsApplied *prometheus.CounterVec
	FeedEventsDropped *prometheus.CounterVec

	// Admin intake metrics
	IntakeSynthesized *prometheus.CounterVec
	IntakeFailures    *prometheus.CounterVec

	// Remote writes issued by viewer actions
	RemoteWrites        *prometheus.CounterVec
	RemoteWriteFailures *prometheus.CounterVec

	// Session metrics
	ActiveSessions prometheus.Gauge

	// Relay metrics
	RelayEventsForwarded *prometheus.CounterVec
	RelayEventsFailed    prometheus.Counter

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
}

// NewMetrics creates all application metrics on reg. A nil reg leaves them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FeedEventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feed_events_applied_total",
			Help:      "Total number of live feed events applied to a viewer store",
		}, []string{"kind"}),
		FeedEventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feed_events_dropped_total",
			Help:      "Total number of live feed events that could not be decoded",
		}, []string{"table"}),
		IntakeSynthesized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "intake_notifications_total",
			Help:      "Total number of admin notifications synthesized from source inserts",
		}, []string{"type"}),
		IntakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "intake_failures_total",
			Help:      "Total number of admin notifications that could not be persisted",
		}, []string{"type"}),
		RemoteWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "remote_writes_total",
			Help:      "Total number of remote writes issued by viewer actions",
		}, []string{"operation"}),
		RemoteWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "remote_write_failures_total",
			Help:      "Total number of failed remote writes issued by viewer actions",
		}, []string{"operation"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Current number of live viewer sessions",
		}),
		RelayEventsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "relay_events_forwarded_total",
			Help:      "Total number of database change notifications forwarded",
		}, []string{"table"}),
		RelayEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "relay_events_failed_total",
			Help:      "Total number of database change notifications that could not be forwarded",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// New builds unregistered metrics under namespace.
func New(namespace string) *Metrics {
	return NewMetrics(nil, namespace, "")
}
