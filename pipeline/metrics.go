package pipeline

import (
	"errors"

	"github.com/aluiziolira/htmltable2csv/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for conversions.
type Metrics struct {
	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	TablesFoundTotal   prometheus.Counter
	RowsWrittenTotal   prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics constructs the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	conversions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversions_total",
			Help: "Conversions by outcome.",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conversion_duration_seconds",
			Help:    "End-to-end conversion latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	tables := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tables_found_total",
			Help: "Tables found in converted documents.",
		},
	)
	rows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rows_written_total",
			Help: "Data rows written to CSV output.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_errors_total",
			Help: "Failed conversions by error type.",
		},
		[]string{"error_type"},
	)

	if reg != nil {
		reg.MustRegister(conversions, duration, tables, rows, errorsTotal)
	}

	return &Metrics{
		ConversionsTotal:   conversions,
		ConversionDuration: duration,
		TablesFoundTotal:   tables,
		RowsWrittenTotal:   rows,
		ErrorsTotal:        errorsTotal,
	}
}

// Observe records a finished conversion.
func (m *Metrics) Observe(result *models.ConversionResult, err error) {
	if m == nil || result == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(result.Outcome.String()).Inc()
	m.ConversionDuration.Observe(result.Duration().Seconds())
	m.TablesFoundTotal.Add(float64(result.TablesFound))
	m.RowsWrittenTotal.Add(float64(result.RowsWritten))

	if err != nil {
		label := "other"
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			label = convErr.Label()
		}
		m.ErrorsTotal.WithLabelValues(label).Inc()
	}
}
