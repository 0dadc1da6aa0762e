package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weatherready"

// Query outcomes used as the outcome label of QueriesTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeFeed     = "feed_error"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors for queries, snapshots and alerts.
type Metrics struct {
	QueriesTotal  *prometheus.CounterVec // labels: outcome
	FeedDuration  prometheus.Histogram
	AlertsTotal   *prometheus.CounterVec // labels: metric
	SnapshotTotal *prometheus.CounterVec // labels: kind

	// Delivery metrics.
	NotificationsTotal *prometheus.CounterVec // labels: channel, outcome
	WatcherRunning     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.QueriesTotal,
		m.FeedDuration,
		m.AlertsTotal,
		m.SnapshotTotal,
		m.NotificationsTotal,
		m.WatcherRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Weather queries by outcome.",
		}, []string{"outcome"}),
		FeedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_duration_seconds",
			Help:      "Duration of observation feed requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold violations found, by metric.",
		}, []string{"metric"}),
		SnapshotTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots persisted, by kind.",
		}, []string{"kind"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		WatcherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watcher_running",
			Help:      "1 while the watch loop is active, 0 otherwise.",
		}),
	}
}

// ObserveDelivery records one notification attempt. It matches the
// alerting.DeliveryObserver signature.
func (m *Metrics) ObserveDelivery(channel string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}
