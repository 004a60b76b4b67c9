// Package metrics holds the prometheus instrumentation of a node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fracnode"

// Node collects node metrics. A nil *Node is valid and records nothing.
type Node struct {
	reg *prometheus.Registry

	connections    prometheus.Gauge
	connectionsTot *prometheus.CounterVec
	commands       *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
	rows           prometheus.Counter
	renderSeconds  prometheus.Histogram
}

// NewNode registers node metrics, together with the Go and process
// collectors, on a fresh registry.
func NewNode() *Node {
	reg := prometheus.NewRegistry()
	m := &Node{
		reg: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently open protocol connections.",
		}),
		connectionsTot: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted protocol connections by listener (tcp, ws).",
		}, []string{"listener"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Handled protocol commands by tag.",
		}, []string{"command"}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because of a protocol error, by kind.",
		}, []string{"kind"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rendered_total",
			Help:      "Image rows rendered and streamed back.",
		}),
		renderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_rows_seconds",
			Help:      "Time spent rendering one RENDER_ROWS request.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12), // 1ms .. ~60s
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.connectionsTot,
		m.commands,
		m.protocolErrors,
		m.rows,
		m.renderSeconds,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Node) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the prometheus text format.
func (m *Node) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Node) ConnOpened(listener string) {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connectionsTot.WithLabelValues(listener).Inc()
}

func (m *Node) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Node) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

func (m *Node) ProtocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *Node) RowsRendered(n int, took time.Duration) {
	if m == nil {
		return
	}
	m.rows.Add(float64(n))
	m.renderSeconds.Observe(took.Seconds())
}
