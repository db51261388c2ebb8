package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	pollOutcomes *prometheus.CounterVec
	pollAttempts prometheus.Histogram
	jobs         *prometheus.CounterVec
	toggles      *prometheus.CounterVec
	usageDenied  prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		pollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixora",
			Name:      "poll_outcomes_total",
			Help:      "Completion polls by outcome (ready, exhausted, cancelled).",
		}, []string{"outcome"}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pixora",
			Name:      "poll_attempts",
			Help:      "Probes issued per completion poll.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 40, 60},
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixora",
			Name:      "jobs_total",
			Help:      "Jobs reaching a terminal status.",
		}, []string{"status"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixora",
			Name:      "effect_toggles_total",
			Help:      "Effect toggle requests by result.",
		}, []string{"result"}),
		usageDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixora",
			Name:      "usage_denied_total",
			Help:      "Uploads refused by the usage gate.",
		}),
	}
	reg.MustRegister(
		m.pollOutcomes,
		m.pollAttempts,
		m.jobs,
		m.toggles,
		m.usageDenied,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObservePoll(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.pollOutcomes.WithLabelValues(outcome).Inc()
	m.pollAttempts.Observe(float64(attempts))
}

func (m *Metrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveToggle(result string) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveUsageDenied() {
	if m == nil {
		return
	}
	m.usageDenied.Inc()
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
