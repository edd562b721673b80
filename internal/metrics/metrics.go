// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jam_bulk_add_jobs_created_total",
			Help: "Total number of bulk-add jobs created",
		},
	)
	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jam_bulk_add_jobs_finished_total",
			Help: "Bulk-add jobs that reached a terminal state, by status",
		},
		[]string{"status"}, // completed|cancelled|failed
	)
	associationsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jam_associations_inserted_total",
			Help: "Company-collection associations committed by bulk workers",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jam_http_requests_total",
			Help: "HTTP requests served, by method and status code",
		},
		[]string{"method", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		jobsCreated,
		jobsFinished,
		associationsInserted,
		httpRequests,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncJobCreated() {
	jobsCreated.Inc()
}

func IncJobFinished(status string) {
	jobsFinished.WithLabelValues(status).Inc()
}

func IncAssociationInserted() {
	associationsInserted.Inc()
}

func IncHTTPRequest(method string, code int) {
	httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
