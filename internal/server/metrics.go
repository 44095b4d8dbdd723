package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	QueriesCompiled *prometheus.CounterVec
	Executions      *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docq_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docq_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		QueriesCompiled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docq_queries_compiled_total",
			Help: "List queries compiled, by outcome",
		}, []string{"outcome"}),
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docq_named_query_executions_total",
			Help: "Named query executions, by query and outcome",
		}, []string{"query", "outcome"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docq_events_published_total",
			Help: "Change events published, by topic",
		}, []string{"topic"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
