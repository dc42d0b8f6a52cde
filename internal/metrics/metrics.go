package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "customs_ledger_"

	resultSuccess  = "success"
	resultError    = "error"
	resultConflict = "conflict"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	enrichmentRows *prometheus.CounterVec

	reportGenerateTotal *prometheus.CounterVec
)

// Init registers the ledger collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		operationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total ledger operations by operation and result",
			},
			[]string{"op", "result"},
		)
		operationDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_seconds",
				Help:    "Ledger operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		enrichmentRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "enrichment_rows_total",
				Help: "Reconciliation rows and records by outcome",
			},
			[]string{"outcome"},
		)
		reportGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_generate_total",
				Help: "Payment report renders by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			operationsTotal,
			operationDuration,
			enrichmentRows,
			reportGenerateTotal,
		)
	})
}

// ObserveOperation records one ledger operation.
func ObserveOperation(op, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if operationsTotal != nil {
		operationsTotal.WithLabelValues(op, result).Inc()
	}
	if operationDuration != nil {
		operationDuration.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// AddEnrichmentRows counts reconciliation outcomes.
func AddEnrichmentRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if enrichmentRows != nil {
		enrichmentRows.WithLabelValues(outcome).Add(float64(n))
	}
}

func IncReportGenerate(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportGenerateTotal != nil {
		reportGenerateTotal.WithLabelValues(format, result).Inc()
	}
}

const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultConflict = resultConflict
	ResultRejected = resultRejected
)
