package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ingestion_rows_total",
			Help: "Fact rows committed to the store",
		},
		[]string{"source"},
	)

	RowsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ingestion_rows_failed_total",
			Help: "Fact rows left uncommitted after an aborted ingestion",
		},
		[]string{"source"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ingestion_uploads_total",
			Help: "Ingestion attempts by terminal status",
		},
		[]string{"status"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_ingestion_batch_duration_seconds",
			Help:    "Duration of one bulk upsert batch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ai_requests_total",
			Help: "AI completion calls by operation and outcome",
		},
		[]string{"operation", "status"},
	)
)

// Register installs all collectors on the default registry. Call once at startup.
func Register() {
	prometheus.MustRegister(
		RowsIngested,
		RowsFailed,
		UploadsTotal,
		BatchDuration,
		AIRequests,
	)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
