// Package metrics exposes generation counters to Prometheus.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	decodes       *prometheus.CounterVec
	insertions    *prometheus.CounterVec
	compensations *prometheus.CounterVec
	agentCalls    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsic_generation_requests_total",
			Help: "Topic generation requests by outcome.",
		}, []string{"outcome"}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsic_decode_total",
			Help: "Model reply decodes by result.",
		}, []string{"result"}),
		insertions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsic_insertions_total",
			Help: "Topic insertion workflow runs by outcome.",
		}, []string{"outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsic_compensation_deletes_total",
			Help: "Compensating deletes by resource kind and result.",
		}, []string{"kind", "result"}),
		agentCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsic_agent_call_seconds",
			Help:    "Latency of agent runtime calls.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"agent", "op"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.decodes,
		m.insertions,
		m.compensations,
		m.agentCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDecode(result string) {
	if m == nil {
		return
	}
	m.decodes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveInsertion(outcome string) {
	if m == nil {
		return
	}
	m.insertions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCompensation(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "deleted"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveAgentCall(agent, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.agentCalls.WithLabelValues(agent, op).Observe(d.Seconds())
}
