// Package metrics holds the Prometheus collectors of the policy service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insurecrm_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insurecrm_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	policyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insurecrm_policy_transitions_total",
		Help: "Policy status changes by target status and result",
	}, []string{"to", "result"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insurecrm_reminder_sweep_duration_seconds",
		Help:    "Duration of reminder sweeps",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})

	reminders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insurecrm_reminders_total",
		Help: "Reminder outcomes per policy: sent, skipped or failed",
	}, []string{"outcome"})

	policiesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insurecrm_policies_expired_total",
		Help: "Policies moved to EXPIRED by the sweep",
	})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insurecrm_notifications_total",
		Help: "Notification sends by template and result",
	}, []string{"template", "result"})

	salesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insurecrm_sales_recorded_total",
		Help: "Sales recorded",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func ObserveTransition(to, result string) {
	policyTransitions.WithLabelValues(to, result).Inc()
}

// ObserveSweep records how long a sweep started by trigger took.
func ObserveSweep(trigger string, duration time.Duration) {
	sweepDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func ObserveReminder(outcome string) {
	reminders.WithLabelValues(outcome).Inc()
}

func AddExpired(n int) {
	policiesExpired.Add(float64(n))
}

func ObserveNotification(template, result string) {
	notifications.WithLabelValues(template, result).Inc()
}

func IncSales() {
	salesRecorded.Inc()
}
