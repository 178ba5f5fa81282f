// Package metrics exposes hub counters in the Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	connections      prometheus.Gauge
	activeCalls      prometheus.Gauge
	messages         prometheus.Counter
	broadcastDropped prometheus.Counter
	membership       *prometheus.CounterVec
	signals          *prometheus.CounterVec
	rejected         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle", Name: "connections",
			Help: "Open signal connections.",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle", Name: "active_calls",
			Help: "Calls currently active.",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle", Name: "messages_total",
			Help: "Chat messages persisted and broadcast.",
		}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle", Name: "broadcast_dropped_total",
			Help: "Frames refused by a full or closed connection queue.",
		}),
		membership: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "membership_checks_total",
			Help: "Membership checks by outcome.",
		}, []string{"result"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "signals_total",
			Help: "Relayed signaling messages by event and outcome.",
		}, []string{"event", "result"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "rejected_total",
			Help: "Inbound events rejected by error code.",
		}, []string{"code"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.activeCalls, m.messages, m.broadcastDropped,
		m.membership, m.signals, m.rejected,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) ActiveCalls(n int) {
	if m != nil {
		m.activeCalls.Set(float64(n))
	}
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) Dropped(n int) {
	if m != nil && n > 0 {
		m.broadcastDropped.Add(float64(n))
	}
}

func (m *Metrics) Membership(result string) {
	if m != nil {
		m.membership.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Signal(event, result string) {
	if m != nil {
		m.signals.WithLabelValues(event, result).Inc()
	}
}

func (m *Metrics) Rejected(code string) {
	if m != nil {
		m.rejected.WithLabelValues(code).Inc()
	}
}
