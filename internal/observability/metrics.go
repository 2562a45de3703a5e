package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	submissionsTotal       *prometheus.CounterVec
	gradingRunsTotal       *prometheus.CounterVec
	gradingDuration        prometheus.Histogram
	visibilityChangesTotal *prometheus.CounterVec
	activityFeedRequests   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the classroom API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_requests_total",
			Help: "Total number of classroom API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classroom_latency_seconds",
			Help:    "Latency distribution for classroom API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_errors_total",
			Help: "Total number of error responses returned by classroom endpoints.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_submissions_total",
			Help: "Homework submissions stored, by upload mode.",
		}, []string{"mode"})

		gradingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_grading_runs_total",
			Help: "Background grading runs, by outcome.",
		}, []string{"outcome"})

		gradingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classroom_grading_duration_seconds",
			Help:    "Time from grading start to reconciliation.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		})

		visibilityChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_visibility_changes_total",
			Help: "Visibility rows changed, by source.",
		}, []string{"source"})

		activityFeedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_activity_feed_requests_total",
			Help: "Course activity feed reads, by cache result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			submissionsTotal,
			gradingRunsTotal,
			gradingDuration,
			visibilityChangesTotal,
			activityFeedRequests,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Submissions counts stored submissions.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradingRuns counts grading runs by outcome.
func GradingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRunsTotal
}

// GradingDuration observes grading latency.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDuration
}

// VisibilityChanges counts applied visibility changes.
func VisibilityChanges() *prometheus.CounterVec {
	RegisterMetrics()
	return visibilityChangesTotal
}

// ActivityFeedRequests counts activity feed reads by cache result.
func ActivityFeedRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return activityFeedRequests
}
