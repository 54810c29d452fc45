package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an optional Prometheus counter/gauge set exposing connection,
// request, and session activity. It is never consulted by any routing or
// dispatch decision; a caller that never touches Server.Metrics() pays
// nothing for it.
type Metrics struct {
	Registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
	sessionsActive    prometheus.GaugeFunc
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bsrvcore",
			Name:      "connections_active",
			Help:      "Number of connections currently accepted by the server.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bsrvcore",
			Name:      "requests_total",
			Help:      "Total number of dispatched requests, by method.",
		}, []string{"method"}),
	}
	reg.MustRegister(m.connectionsActive, m.requestsTotal)
	return m
}

// bindSessions wires a GaugeFunc that reports the live session count,
// deferred until a SessionMap exists so Metrics can be constructed before
// NewServer finishes assembling its fields.
func (m *Metrics) bindSessions(sm *SessionMap) {
	m.sessionsActive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "bsrvcore",
		Name:      "sessions_active",
		Help:      "Number of live entries in the session map.",
	}, func() float64 { return float64(sm.Len()) })
	m.Registry.MustRegister(m.sessionsActive)
}
