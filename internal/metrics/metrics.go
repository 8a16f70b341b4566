// Package metrics holds the Prometheus collectors shared by the API and the
// worker. Collectors register on the default registry at init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelshoot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelshoot_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	LedgerApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelshoot_ledger_applies_total",
		Help: "Ledger apply attempts by category and result",
	}, []string{"category", "result"})

	JobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modelshoot_jobs_processed_total",
		Help: "Job attempts by kind and outcome",
	}, []string{"kind", "outcome"})

	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelshoot_render_duration_seconds",
		Help:    "Render API call latency",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelshoot_claim_conflicts_total",
		Help: "Claims lost to a concurrent worker",
	})

	EmptyPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelshoot_scheduler_empty_polls_total",
		Help: "Scheduler polls that found no eligible batch",
	})

	SQLDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelshoot_sql_statement_duration_seconds",
		Help:    "Statement latency by sql marker",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"marker", "op", "result"})

	LeasesRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelshoot_leases_requeued_total",
		Help: "Processing jobs whose lease expired",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
