// Package prometheus provides a Prometheus implementation of the ergors.Metrics interface.
//
// This package enables integration with Prometheus monitoring systems. All metrics
// are registered with the default Prometheus registry and follow Prometheus naming
// conventions.
//
// # Metric Names
//
// All metrics use the configured namespace prefix (default: "ergors"). The full
// metric name follows the pattern: {namespace}_{name}
//
// # Counters
//
//	ergors_peers_connected_total{role="coordinator|executor|referee|development"}
//	ergors_peers_disconnected_total{role="coordinator|executor|referee|development"}
//	ergors_peers_evicted_total
//	ergors_messages_sent_total{channel="<name>"}
//	ergors_messages_received_total{channel="<name>"}
//	ergors_bytes_sent_total{channel="<name>"}
//	ergors_bytes_received_total{channel="<name>"}
//	ergors_messages_dropped_total{reason="decode|validate|buffer"}
//	ergors_requests_started_total
//	ergors_requests_completed_total{result="success|timeout|canceled|error"}
//	ergors_events_emitted_total{kind="<kind>"}
//	ergors_events_dropped_total
//	ergors_maintenance_ticks_total
//
// # Histograms
//
//	ergors_request_duration_seconds{result="success|timeout|canceled|error"}
//
// # Gauges
//
//	ergors_current_peers
//	ergors_current_online_peers
//
// # Example Usage
//
//	import (
//	    "github.com/permissionlessweb/ergors"
//	    prommetrics "github.com/permissionlessweb/ergors/prometheus"
//	    "github.com/prometheus/client_golang/prometheus/promhttp"
//	)
//
//	func main() {
//	    metrics := prommetrics.NewMetrics("myapp")
//
//	    cfg := ergors.NewConfig(id,
//	        ergors.WithMetrics(metrics),
//	    )
//
//	    mgr, err := ergors.New(cfg)
//	    // ...
//
//	    // Expose metrics endpoint
//	    http.Handle("/metrics", promhttp.Handler())
//	    http.ListenAndServe(":9090", nil)
//	}
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/permissionlessweb/ergors"
)

// DefaultNamespace is the default namespace for all metrics.
const DefaultNamespace = "ergors"

// Metrics implements the ergors.Metrics interface using Prometheus metrics.
// All metrics are registered with the default Prometheus registry.
//
// Metrics is safe for concurrent use.
type Metrics struct {
	// Peer metrics
	peersConnected    *prometheus.CounterVec
	peersDisconnected *prometheus.CounterVec
	peersEvicted      prometheus.Counter
	currentPeers      prometheus.Gauge
	currentOnline     prometheus.Gauge

	// Message metrics
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	bytesSent        *prometheus.CounterVec
	bytesReceived    *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec

	// Request metrics
	requestsStarted   prometheus.Counter
	requestsCompleted *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec

	// Event metrics
	eventsEmitted *prometheus.CounterVec
	eventsDropped prometheus.Counter

	// Maintenance metrics
	maintenanceTicks prometheus.Counter
}

// Ensure Metrics implements ergors.Metrics.
var _ ergors.Metrics = (*Metrics)(nil)

// NewMetrics creates a new Prometheus metrics collector with the given namespace.
// If namespace is empty, DefaultNamespace ("ergors") is used.
//
// All metrics are automatically registered with the default Prometheus registry.
// If registration fails (e.g., metrics already registered), this function will panic.
// To avoid panics, use NewMetricsWithRegisterer with a custom registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Prometheus metrics collector with the given
// namespace and registerer. This allows using a custom registry for testing or
// to avoid conflicts with other metrics.
//
// If namespace is empty, DefaultNamespace ("ergors") is used.
// If registerer is nil, metrics will not be registered automatically.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		peersConnected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "peers_connected_total",
				Help:      "Total number of peer sessions established by role",
			},
			[]string{"role"},
		),
		peersDisconnected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "peers_disconnected_total",
				Help:      "Total number of peer sessions ended by role",
			},
			[]string{"role"},
		),
		peersEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "peers_evicted_total",
				Help:      "Total number of stale peers evicted",
			},
		),
		currentPeers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_peers",
				Help:      "Current number of known peers",
			},
		),
		currentOnline: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_online_peers",
				Help:      "Current number of online peers",
			},
		),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent per channel",
			},
			[]string{"channel"},
		),
		messagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Total number of messages received per channel",
			},
			[]string{"channel"},
		),
		bytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Total bytes sent per channel",
			},
			[]string{"channel"},
		),
		bytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_received_total",
				Help:      "Total bytes received per channel",
			},
			[]string{"channel"},
		),
		messagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dropped_total",
				Help:      "Total number of inbound messages discarded by reason",
			},
			[]string{"reason"},
		),
		requestsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_started_total",
				Help:      "Total number of correlated requests issued",
			},
		),
		requestsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_completed_total",
				Help:      "Total number of correlated requests completed by result",
			},
			[]string{"result"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Histogram of correlated request durations",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		),
		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_emitted_total",
				Help:      "Total number of events emitted by kind",
			},
			[]string{"kind"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped due to buffer full",
			},
		),
		maintenanceTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_ticks_total",
				Help:      "Total number of maintenance passes",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.peersConnected,
			m.peersDisconnected,
			m.peersEvicted,
			m.currentPeers,
			m.currentOnline,
			m.messagesSent,
			m.messagesReceived,
			m.bytesSent,
			m.bytesReceived,
			m.messagesDropped,
			m.requestsStarted,
			m.requestsCompleted,
			m.requestDuration,
			m.eventsEmitted,
			m.eventsDropped,
			m.maintenanceTicks,
		)
	}

	return m
}

// PeerConnected implements ergors.Metrics.
func (m *Metrics) PeerConnected(role string) {
	m.peersConnected.WithLabelValues(role).Inc()
}

// PeerDisconnected implements ergors.Metrics.
func (m *Metrics) PeerDisconnected(role string) {
	m.peersDisconnected.WithLabelValues(role).Inc()
}

// PeerEvicted implements ergors.Metrics.
func (m *Metrics) PeerEvicted() {
	m.peersEvicted.Inc()
}

// SetPeers implements ergors.Metrics.
func (m *Metrics) SetPeers(n int) {
	m.currentPeers.Set(float64(n))
}

// SetOnlinePeers implements ergors.Metrics.
func (m *Metrics) SetOnlinePeers(n int) {
	m.currentOnline.Set(float64(n))
}

// MessageSent implements ergors.Metrics.
func (m *Metrics) MessageSent(channel string, bytes int) {
	m.messagesSent.WithLabelValues(channel).Inc()
	m.bytesSent.WithLabelValues(channel).Add(float64(bytes))
}

// MessageReceived implements ergors.Metrics.
func (m *Metrics) MessageReceived(channel string, bytes int) {
	m.messagesReceived.WithLabelValues(channel).Inc()
	m.bytesReceived.WithLabelValues(channel).Add(float64(bytes))
}

// MessageDropped implements ergors.Metrics.
func (m *Metrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// RequestStarted implements ergors.Metrics.
func (m *Metrics) RequestStarted() {
	m.requestsStarted.Inc()
}

// RequestCompleted implements ergors.Metrics.
func (m *Metrics) RequestCompleted(result string, seconds float64) {
	m.requestsCompleted.WithLabelValues(result).Inc()
	m.requestDuration.WithLabelValues(result).Observe(seconds)
}

// EventEmitted implements ergors.Metrics.
func (m *Metrics) EventEmitted(kind string) {
	m.eventsEmitted.WithLabelValues(kind).Inc()
}

// EventDropped implements ergors.Metrics.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}

// MaintenanceTick implements ergors.Metrics.
func (m *Metrics) MaintenanceTick() {
	m.maintenanceTicks.Inc()
}
