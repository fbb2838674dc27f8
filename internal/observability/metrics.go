package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. All methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	assignments   *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	qualityScores prometheus.Histogram
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "Total number of HTTP requests that ended with an error code",
		}, []string{"path", "method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_transitions_total",
			Help: "Ticket status transitions applied",
		}, []string{"from", "to"}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_assignments_total",
			Help: "Agent assignment attempts by outcome",
		}, []string{"outcome"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_external_fallbacks_total",
			Help: "External evaluator or enhancer calls that fell back to defaults",
		}, []string{"component"}),
		qualityScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_quality_score",
			Help:    "Final quality scores",
			Buckets: []float64{40, 50, 60, 70, 80, 90, 100},
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts an applied status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordAssignment counts an assignment attempt; assigned is false when no agent was eligible.
func (m *Metrics) RecordAssignment(assigned bool) {
	if m == nil {
		return
	}
	outcome := "assigned"
	if !assigned {
		outcome = "unassigned"
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// RecordFallback counts an external call that degraded to its default.
func (m *Metrics) RecordFallback(component string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(component).Inc()
}

// ObserveQualityScore records a final quality score.
func (m *Metrics) ObserveQualityScore(score float64) {
	if m == nil {
		return
	}
	m.qualityScores.Observe(score)
}
