package transport

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/uniity/sedap-express/metrics"
)

// Metrics holds all network-level metrics of one transport kind
type Metrics struct {
	// Connection management
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionDuration prometheus.Histogram
	State              prometheus.Gauge

	// Message I/O
	MessagesTotal    *prometheus.CounterVec
	MessageSizeBytes *prometheus.HistogramVec

	// Broadcast performance
	BroadcastsTotal     prometheus.Counter
	BroadcastRecipients prometheus.Histogram
	BroadcastDuration   prometheus.Histogram

	// Network errors
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates metrics for a transport kind ("tcp", "rest") on the global registry
func NewMetrics(kind string) *Metrics {
	return NewMetricsWith(metrics.NewComponentRegistry(metrics.Namespace, strings.ReplaceAll(kind, "-", "_")))
}

// NewMetricsWith creates transport metrics on reg
func NewMetricsWith(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		ConnectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "connections_total",
			Help: "Total number of network connections",
		}, []string{"state"}),

		ConnectionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of active network connections",
		}),

		ConnectionDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "connection_duration_seconds",
			Help:    "Duration of network connections",
			Buckets: metrics.NetworkBuckets,
		}),

		State: reg.NewGauge(prometheus.GaugeOpts{
			Name: "state",
			Help: "Transport state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting",
		}),

		MessagesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total number of messages by type and direction",
		}, []string{"type", "direction"}),

		MessageSizeBytes: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "message_size_bytes",
			Help:    "Size of wire lines in bytes",
			Buckets: metrics.SizeBuckets,
		}, []string{"type", "direction"}),

		BroadcastsTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total number of broadcast operations",
		}),

		BroadcastRecipients: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_recipients_total",
			Help:    "Number of recipients per broadcast operation",
			Buckets: metrics.CountBuckets,
		}),

		BroadcastDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_duration_seconds",
			Help:    "Duration of broadcast operations",
			Buckets: metrics.DurationBuckets,
		}),

		ErrorsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of network errors",
		}, []string{"type", "operation"}),
	}
}

// RecordConnection records a network connection event
func (m *Metrics) RecordConnection(state string) {
	m.ConnectionsTotal.WithLabelValues(state).Inc()

	switch state {
	case "accepted", "established":
		m.ConnectionsActive.Inc()
	case "closed":
		m.ConnectionsActive.Dec()
	default:
	}
}

// RecordConnectionDuration records the duration of a network connection
func (m *Metrics) RecordConnectionDuration(duration time.Duration) {
	m.ConnectionDuration.Observe(duration.Seconds())
}

// RecordState exports the current transport state
func (m *Metrics) RecordState(s State) {
	m.State.Set(float64(s))
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(msgType string, sizeBytes int) {
	m.MessagesTotal.WithLabelValues(msgType, "received").Inc()
	m.MessageSizeBytes.WithLabelValues(msgType, "received").Observe(float64(sizeBytes))
}

// RecordMessageSent records a sent message
func (m *Metrics) RecordMessageSent(msgType string, sizeBytes int) {
	m.MessagesTotal.WithLabelValues(msgType, "sent").Inc()
	m.MessageSizeBytes.WithLabelValues(msgType, "sent").Observe(float64(sizeBytes))
}

// RecordBroadcast records a broadcast operation
func (m *Metrics) RecordBroadcast(recipientCount int, duration time.Duration) {
	m.BroadcastsTotal.Inc()
	m.BroadcastRecipients.Observe(float64(recipientCount))
	m.BroadcastDuration.Observe(duration.Seconds())
}

// RecordError records a network error
func (m *Metrics) RecordError(errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(errorType, operation).Inc()
}
