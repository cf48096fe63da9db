package communicator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/uniity/sedap-express/metrics"
	"github.com/uniity/sedap-express/x/message"
)

// Metrics holds the hub metrics
type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	DroppedTotal         *prometheus.CounterVec
	SubscriberFailures   prometheus.Counter
	DistributionDuration *prometheus.HistogramVec
	QueueDepth           prometheus.Gauge
	Subscribers          prometheus.Gauge
}

// NewMetrics creates hub metrics on the global registry
func NewMetrics() *Metrics {
	return NewMetricsWith(metrics.NewComponentRegistry(metrics.Namespace, "communicator"))
}

// NewMetricsWith creates hub metrics on reg
func NewMetricsWith(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		MessagesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total number of messages by type and direction",
		}, []string{"type", "direction"}),

		DroppedTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "dropped_total",
			Help: "Outbound messages rejected by reason",
		}, []string{"reason"}),

		SubscriberFailures: reg.NewCounter(prometheus.CounterOpts{
			Name: "subscriber_failures_total",
			Help: "Subscriber errors and panics during distribution",
		}),

		DistributionDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "distribution_duration_seconds",
			Help:    "Time spent delivering a message to all subscribers",
			Buckets: metrics.DurationBuckets,
		}, []string{"type"}),

		QueueDepth: reg.NewGauge(prometheus.GaugeOpts{
			Name: "outbound_queue_depth",
			Help: "Messages waiting in the outbound queue",
		}),

		Subscribers: reg.NewGauge(prometheus.GaugeOpts{
			Name: "subscribers",
			Help: "Number of registered subscribers",
		}),
	}
}

func (m *Metrics) recordMessage(t message.Type, dir Direction) {
	m.MessagesTotal.WithLabelValues(string(t), dir.String()).Inc()
}

func (m *Metrics) recordDropped(reason string) {
	m.DroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordDistribution(t message.Type, d time.Duration) {
	m.DistributionDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}
