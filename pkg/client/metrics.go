package client

import (
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for forum client operations.
var (
	forumRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_requests_total",
		Help: "Total forum requests by endpoint and status",
	}, []string{"endpoint", "status"})

	forumRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_request_duration_seconds",
		Help:    "Forum request duration in seconds by endpoint, including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	forumErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_errors_total",
		Help: "Total failed forum attempts by error kind",
	}, []string{"kind"})

	forumRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	forumRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	forumRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})

	forumChallengesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_challenges_total",
		Help: "Anti-bot challenges by outcome (detected, solved, failed, skipped)",
	}, []string{"outcome"})
)

var numericSegment = regexp.MustCompile(`/\d+(\.json)?(/|$)`)

// endpointLabel collapses numeric path segments so metric cardinality stays
// bounded (e.g. /t/123.json -> /t/:id.json).
func endpointLabel(path string) string {
	for {
		next := numericSegment.ReplaceAllString(path, "/:id$1$2")
		if next == path {
			return path
		}
		path = next
	}
}
