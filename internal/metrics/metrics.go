// Package metrics exposes the monitor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "robomon"

// Metrics groups the collectors updated by the store and the transport.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	inbound       *prometheus.CounterVec
	outbound      *prometheus.CounterVec
	emitFailures  *prometheus.CounterVec
	staleEvents   prometheus.Counter
	handlerErrors *prometheus.CounterVec
	connectErrors *prometheus.CounterVec
	logEntries    *prometheus.CounterVec
	online        prometheus.Gauge
	connected     prometheus.Gauge
	cameraFrames  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "inbound_total",
			Help:      "Inbound events handled, by event name.",
		}, []string{"event"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbound_total",
			Help:      "Outbound events emitted, by event name.",
		}, []string{"event"}),
		emitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emit_failures_total",
			Help:      "Outbound events the transport refused, by event name.",
		}, []string{"event"}),
		staleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stale_total",
			Help:      "Events dropped because they came from a released transport handle.",
		}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_errors_total",
			Help:      "Inbound events that could not be applied, by event name.",
		}, []string{"event"}),
		connectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connect_errors_total",
			Help:      "Failed connection attempts, by error kind.",
		}, []string{"kind"}),
		logEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "entries_total",
			Help:      "Confirmed log entries, by direction.",
		}, []string{"direction"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "online",
			Help:      "1 while the monitor is connected to the relay.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clients",
			Name:      "connected",
			Help:      "Clients currently believed reachable.",
		}),
		cameraFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "frames_total",
			Help:      "Camera frames received, by result (accepted, malformed, dropped).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.inbound, m.outbound, m.emitFailures, m.staleEvents, m.handlerErrors,
		m.connectErrors, m.logEntries, m.online, m.connected, m.cameraFrames,
	)
	return m
}

func (m *Metrics) Inbound(event string) {
	if m != nil {
		m.inbound.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Outbound(event string) {
	if m != nil {
		m.outbound.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EmitFailed(event string) {
	if m != nil {
		m.emitFailures.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Stale() {
	if m != nil {
		m.staleEvents.Inc()
	}
}

func (m *Metrics) HandlerError(event string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ConnectError(kind string) {
	if m != nil {
		m.connectErrors.WithLabelValues(kind).Inc()
	}
}

// LogEntry counts one confirmed entry; received selects the direction label.
func (m *Metrics) LogEntry(received bool) {
	if m == nil {
		return
	}
	dir := "sent"
	if received {
		dir = "received"
	}
	m.logEntries.WithLabelValues(dir).Inc()
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func (m *Metrics) SetConnected(n int) {
	if m != nil {
		m.connected.Set(float64(n))
	}
}

// CameraFrame counts a frame by result: accepted, malformed or dropped.
func (m *Metrics) CameraFrame(result string) {
	if m != nil {
		m.cameraFrames.WithLabelValues(result).Inc()
	}
}
