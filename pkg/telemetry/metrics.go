package telemetry

import (
	"net/http"
	"time"

	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "slimerrt").
	Namespace string

	// Subsystem is the metrics subsystem, typically "server" or "client".
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for broadcast duration.
	// Default: 50µs to ~100ms, exponential.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "slimerrt",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the network layer's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	packetsReceived   prometheus.Counter
	packetsSent       prometheus.Counter
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	sendErrors        prometheus.Counter
	connectionEvents  *prometheus.CounterVec
	peers             prometheus.Gauge
	chatRelayed       prometheus.Counter
	broadcastDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors. Registering twice with
// the same registry panics, as with any promauto collector.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	m := &Metrics{
		packetsReceived:  counter("packets_received_total", "Total number of packets received"),
		packetsSent:      counter("packets_sent_total", "Total number of packets sent"),
		bytesReceived:    counter("packet_bytes_received_total", "Total packet payload bytes received"),
		bytesSent:        counter("packet_bytes_sent_total", "Total packet payload bytes sent"),
		messagesReceived: counterVec("messages_received_total", "Messages decoded, by kind", "kind"),
		messagesSent:     counterVec("messages_sent_total", "Messages encoded and sent, by kind", "kind"),
		decodeErrors:     counterVec("decode_errors_total", "Packets dropped because they failed to decode, by reason", "reason"),
		sendErrors:       counter("send_errors_total", "Total number of failed packet sends"),
		connectionEvents: counterVec("connection_events_total", "Transport connection events, by type", "type"),
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "peers",
			Help:        "Number of connected peers",
			ConstLabels: config.ConstLabels,
		}),
		chatRelayed: counter("chat_relayed_total", "Chat messages relayed to all peers"),
		broadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "broadcast_duration_seconds",
			Help:        "Time spent sending one packet to every peer",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
	if g, ok := config.Registry.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// PacketReceived counts one inbound packet of n bytes.
func (m *Metrics) PacketReceived(n int) {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

// PacketSent counts one outbound packet of n bytes.
func (m *Metrics) PacketSent(n int) {
	if m == nil {
		return
	}
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(n))
}

// MessageReceived counts one decoded message.
func (m *Metrics) MessageReceived(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind.String()).Inc()
}

// MessageSent counts one sent message.
func (m *Metrics) MessageSent(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(kind.String()).Inc()
}

// DecodeFailed counts a dropped packet. Use protocol.DecodeReason for the
// label so its cardinality stays bounded.
func (m *Metrics) DecodeFailed(reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(reason).Inc()
}

// SendFailed counts a packet the transport refused.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// ConnectionEvent counts a transport event such as "connect" or "timeout".
func (m *Metrics) ConnectionEvent(typ string) {
	if m == nil {
		return
	}
	m.connectionEvents.WithLabelValues(typ).Inc()
}

// SetPeers records the current number of connected peers.
func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

// ChatRelayed counts a chat message rebroadcast by the server.
func (m *Metrics) ChatRelayed() {
	if m == nil {
		return
	}
	m.chatRelayed.Inc()
}

// ObserveBroadcast records how long one broadcast took.
func (m *Metrics) ObserveBroadcast(d time.Duration) {
	if m == nil {
		return
	}
	m.broadcastDuration.Observe(d.Seconds())
}

// Handler serves the metrics in the Prometheus exposition format. It serves
// the configured registry when that registry is also a Gatherer, and the
// default registry otherwise.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
