// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package anywhere is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FormsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "user_forms_open",
			Help: "Number of creation forms currently held in memory.",
		})

	FormsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_forms_opened_total",
			Help: "Cumulative number of creation forms opened, by role.",
		}, []string{"role"})

	FormsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_forms_evicted_total",
			Help: "Cumulative number of forms evicted, by reason (idle, lru).",
		}, []string{"reason"})

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_form_submissions_total",
			Help: "Submission attempts by role and outcome.",
		}, []string{"role", "outcome"})

	SubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "user_form_submission_duration_seconds",
			Help:    "Time from submit to terminal state, by role.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"})

	ImageRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_form_image_rejections_total",
			Help: "Image selections rejected by size or type checks, by role.",
		}, []string{"role"})

	ActionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_form_action_failures_total",
			Help: "Post-create action failures, by action.",
		}, []string{"action"})
)

func init() {
	prometheus.MustRegister(
		FormsOpen,
		FormsOpenedTotal,
		FormsEvictedTotal,
		SubmissionsTotal,
		SubmissionDuration,
		ImageRejectionsTotal,
		ActionFailuresTotal,
	)
}
