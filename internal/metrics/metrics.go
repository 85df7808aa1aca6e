package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "appointments_cancelled_total",
			Help:      "Count of appointments cancelled with refund, by reason.",
		},
		[]string{"reason"},
	)

	compensationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "compensation_failures_total",
			Help:      "Count of cancellations whose refund transaction failed, by reason.",
		},
		[]string{"reason"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "bookings_created_total",
			Help:      "Count of appointments booked, by payment method.",
		},
		[]string{"method"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "booking_conflicts_total",
			Help:      "Count of bookings rejected because the slot was taken.",
		},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "reconcile_runs_total",
			Help:      "Count of expiry reconciliation runs, by trigger.",
		},
		[]string{"trigger"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "telecare",
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling expired appointments.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"trigger"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "notifications_sent_total",
			Help:      "Count of telegram notifications by outcome.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "telecare",
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentsCancelled, compensationFailures,
			bookingsCreated, bookingConflicts,
			reconcileRuns, reconcileDuration,
			notificationsSent,
			httpRequests, httpDuration,
		)
	})
}

func IncAppointmentCancelled(reason string) {
	appointmentsCancelled.WithLabelValues(reason).Inc()
}

func IncCompensationFailure(reason string) {
	compensationFailures.WithLabelValues(reason).Inc()
}

func IncBookingCreated(method string) {
	bookingsCreated.WithLabelValues(method).Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func ObserveReconcile(trigger string, seconds float64) {
	reconcileRuns.WithLabelValues(trigger).Inc()
	reconcileDuration.WithLabelValues(trigger).Observe(seconds)
}

func IncNotification(status string) {
	notificationsSent.WithLabelValues(status).Inc()
}

func ObserveHTTP(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}
