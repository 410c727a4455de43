package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for the connection registry and broadcast path.
// All methods are safe to call on a nil receiver.
type RelayMetrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsOpened *prometheus.CounterVec
	MessagesReceived  prometheus.Counter
	Deliveries        *prometheus.CounterVec
	ForcedCloses      *prometheus.CounterVec
	ProtocolErrors    *prometheus.CounterVec
	BroadcastFanout   prometheus.Histogram
	BroadcastDuration prometheus.Histogram
	ControllerPanics  prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "active_connections",
			Help:      "Number of connections currently registered.",
		}),
		ConnectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections_opened_total",
			Help:      "Total number of open events, by result.",
		}, []string{"result"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_received_total",
			Help:      "Total number of messages received from senders.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Total number of per-recipient delivery attempts, by result.",
		}, []string{"result"}),
		ForcedCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "forced_closes_total",
			Help:      "Total number of connections closed by the relay, by reason.",
		}, []string{"reason"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "protocol_errors_total",
			Help:      "Total number of lifecycle events that did not match connection state, by event.",
		}, []string{"event"}),
		BroadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcast_fanout",
			Help:      "Number of recipients per broadcast.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of a full broadcast in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ControllerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "controller_panics_total",
			Help:      "Total number of panics recovered in the controller loop.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ConnectionsOpened,
		m.MessagesReceived,
		m.Deliveries,
		m.ForcedCloses,
		m.ProtocolErrors,
		m.BroadcastFanout,
		m.BroadcastDuration,
		m.ControllerPanics,
	)
	return m
}

func (m *RelayMetrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(n))
}

func (m *RelayMetrics) Opened(result string) {
	if m == nil {
		return
	}
	m.ConnectionsOpened.WithLabelValues(result).Inc()
}

func (m *RelayMetrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

func (m *RelayMetrics) Delivered(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

func (m *RelayMetrics) ForcedClose(reason string) {
	if m == nil {
		return
	}
	m.ForcedCloses.WithLabelValues(reason).Inc()
}

func (m *RelayMetrics) ProtocolError(event string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(event).Inc()
}

// ObserveBroadcast records the fanout and duration of one broadcast.
func (m *RelayMetrics) ObserveBroadcast(recipients int, seconds float64) {
	if m == nil {
		return
	}
	m.BroadcastFanout.Observe(float64(recipients))
	m.BroadcastDuration.Observe(seconds)
}

func (m *RelayMetrics) Panic() {
	if m == nil {
		return
	}
	m.ControllerPanics.Inc()
}
