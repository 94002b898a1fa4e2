package source

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for document loading.
type Metrics struct {
	LoadsTotal    *prometheus.CounterVec
	FetchAttempts *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	RetriesTotal  prometheus.Counter
}

// NewMetrics constructs the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	loads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_loads_total",
			Help: "Documents loaded, by kind (file or http).",
		},
		[]string{"kind"},
	)
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_attempts_total",
			Help: "HTTP fetch attempts by result.",
		},
		[]string{"result"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "HTTP fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "source_retries_total",
			Help: "Total number of fetch retries.",
		},
	)

	if reg != nil {
		reg.MustRegister(loads, attempts, duration, retries)
	}

	return &Metrics{
		LoadsTotal:    loads,
		FetchAttempts: attempts,
		FetchDuration: duration,
		RetriesTotal:  retries,
	}
}

// IncLoad increments the loads counter for kind.
func (m *Metrics) IncLoad(kind string) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(kind).Inc()
}

// IncAttempt records one fetch attempt and its result label.
func (m *Metrics) IncAttempt(result string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(result).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}
