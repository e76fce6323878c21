package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	datasetUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckask_dataset_uploads_total",
			Help: "Total number of dataset uploads by outcome.",
		},
		[]string{"format", "outcome"},
	)
	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckask_dataset_rows",
			Help: "Row count of the most recently ingested dataset.",
		},
	)
	translateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckask_translate_requests_total",
			Help: "Total number of natural language translation requests by outcome.",
		},
		[]string{"outcome"},
	)
	translateRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckask_translate_retries_total",
			Help: "Total number of translation attempts retried after a transient failure.",
		},
	)
	translateDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duckask_translate_duration_seconds",
			Help:    "Latency of language model translation calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duckask_query_duration_seconds",
			Help:    "Latency of SQL execution against the embedded engine.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	sqlRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckask_sql_rejected_total",
			Help: "Total number of SQL statements rejected by validation.",
		},
		[]string{"reason"},
	)
	chartFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckask_chart_fallbacks_total",
			Help: "Total number of chart suggestions dropped in favor of table-only rendering.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		datasetUploadsTotal,
		datasetRows,
		translateRequestsTotal,
		translateRetriesTotal,
		translateDurationSeconds,
		queryDurationSeconds,
		sqlRejectedTotal,
		chartFallbacksTotal,
	)
}

func ObserveDatasetUpload(format string, err error, rows int) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	datasetUploadsTotal.WithLabelValues(format, outcome).Inc()
	if err == nil {
		datasetRows.Set(float64(rows))
	}
}

func ObserveTranslation(err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	translateRequestsTotal.WithLabelValues(outcome).Inc()
	translateDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementTranslateRetry() {
	translateRetriesTotal.Inc()
}

func ObserveQueryDuration(elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementSQLRejected(reason string) {
	sqlRejectedTotal.WithLabelValues(reason).Inc()
}

func IncrementChartFallback() {
	chartFallbacksTotal.Inc()
}
