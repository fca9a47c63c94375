// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yllada/trusttunnel-desktop/vpn"
)

var allStates = []vpn.SessionState{
	vpn.StateDisconnected,
	vpn.StateConnecting,
	vpn.StateConnected,
	vpn.StateReconnecting,
	vpn.StateDisconnecting,
	vpn.StateError,
}

// Metrics holds the session metrics and their private registry.
type Metrics struct {
	SessionState       *prometheus.GaugeVec
	ConnectsTotal      prometheus.Counter
	ReconnectsTotal    prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	OutputBytesTotal   prometheus.Counter
	FlowDecisionsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trusttunnel_session_state",
			Help: "Current session state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	m.ConnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trusttunnel_connects_total",
			Help: "Total number of established sessions",
		},
	)

	m.ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trusttunnel_reconnects_scheduled_total",
			Help: "Total number of scheduled reconnect attempts",
		},
	)

	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trusttunnel_errors_total",
			Help: "Total number of reported session errors",
		},
		[]string{"kind", "fatal"},
	)

	m.OutputBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trusttunnel_output_bytes_total",
			Help: "Total bytes reported by the engine output counter",
		},
	)

	m.FlowDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trusttunnel_flow_decisions_total",
			Help: "Total number of routing decisions by action",
		},
		[]string{"action"},
	)

	m.registry.MustRegister(
		m.SessionState,
		m.ConnectsTotal,
		m.ReconnectsTotal,
		m.ErrorsTotal,
		m.OutputBytesTotal,
		m.FlowDecisionsTotal,
	)

	m.setState(vpn.StateDisconnected)
	return m
}

// Observe records one controller event. It is a controller subscriber.
func (m *Metrics) Observe(ev vpn.Event) {
	switch ev.Kind {
	case vpn.EventStateChanged:
		m.setState(ev.State)
	case vpn.EventConnected:
		m.ConnectsTotal.Inc()
	case vpn.EventError:
		kind := "unknown"
		var f *vpn.Failure
		if errors.As(ev.Err, &f) {
			kind = f.Kind.String()
		}
		m.ErrorsTotal.WithLabelValues(kind, strconv.FormatBool(ev.Fatal())).Inc()
		if ev.RetryIn > 0 {
			m.ReconnectsTotal.Inc()
		}
	case vpn.EventOutput:
		if ev.Bytes > 0 {
			m.OutputBytesTotal.Add(float64(ev.Bytes))
		}
	case vpn.EventConnectionInfo:
		m.FlowDecisionsTotal.WithLabelValues(ev.Flow.Action.String()).Inc()
	}
}

func (m *Metrics) setState(current vpn.SessionState) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.SessionState.WithLabelValues(stateLabel(s)).Set(v)
	}
}

func stateLabel(s vpn.SessionState) string {
	switch s {
	case vpn.StateDisconnected:
		return "disconnected"
	case vpn.StateConnecting:
		return "connecting"
	case vpn.StateConnected:
		return "connected"
	case vpn.StateReconnecting:
		return "reconnecting"
	case vpn.StateDisconnecting:
		return "disconnecting"
	case vpn.StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
