// Package metrics exposes the Prometheus collectors for the query
// endpoint. Collectors are package-level and registered on the default
// registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "status"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_questions_total",
			Help: "Total questions answered by backend and query shape",
		},
		[]string{"query_type", "intent"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "query_duration_seconds",
			Help: "End-to-end question handling duration in seconds",
		},
		[]string{"query_type"},
	)

	RecordPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_record_pages_fetched_total",
			Help: "Total record store pages fetched across all scans",
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_llm_calls_total",
			Help: "Total text-generation delegate calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)
