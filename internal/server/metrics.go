package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gosocket"

// metrics holds the Prometheus collectors for one Server. All methods are
// safe on a nil receiver so connections created outside a Server skip them.
type metrics struct {
	active            prometheus.Gauge
	connections       prometheus.Counter
	disconnects       prometheus.Counter
	received          *prometheus.CounterVec
	sent              prometheus.Counter
	protocolErrors    prometheus.Counter
	broadcastFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of registered WebSocket connections",
		}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections",
		}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "disconnects_total",
			Help:      "Total number of disconnect events dispatched",
		}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages dispatched, by type",
		}, []string{"type"}),
		sent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages written to the transport",
		}),
		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Inbound messages rejected as malformed",
		}),
		broadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_failures_total",
			Help:      "Per-client send failures during broadcasts",
		}),
	}
}

func (m *metrics) connected() {
	if m != nil {
		m.active.Inc()
		m.connections.Inc()
	}
}

func (m *metrics) disconnected() {
	if m != nil {
		m.active.Dec()
		m.disconnects.Inc()
	}
}

func (m *metrics) messageReceived(typ string) {
	if m != nil {
		m.received.WithLabelValues(typ).Inc()
	}
}

func (m *metrics) messageSent() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *metrics) protocolError() {
	if m != nil {
		m.protocolErrors.Inc()
	}
}

func (m *metrics) broadcastFailure() {
	if m != nil {
		m.broadcastFailures.Inc()
	}
}
