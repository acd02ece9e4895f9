package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitos_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// PushDispatches counts dispatcher outcomes. status is sent|skipped|failed,
	// reason carries the skip reason or delivery channel.
	PushDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitos_push_dispatches_total",
			Help: "Total number of push dispatch attempts by outcome",
		},
		[]string{"status", "reason"},
	)

	// GatewayRequests counts push gateway submissions by result (success|failure|open).
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitos_push_gateway_requests_total",
			Help: "Total number of push gateway submissions",
		},
		[]string{"result"},
	)

	// NotificationsCreated counts queued notification rows by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitos_notifications_created_total",
			Help: "Total number of notification rows inserted",
		},
		[]string{"type"},
	)

	// RemindersSent counts appointment reminders queued, labelled by lead minutes.
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitos_reminders_sent_total",
			Help: "Total number of appointment reminders queued",
		},
		[]string{"lead"},
	)

	// JobRuns counts scheduled job executions by job and result (success|failure).
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitos_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "result"},
	)

	// JobDuration measures scheduled job runtimes.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitos_job_duration_seconds",
			Help:    "Scheduled job duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"job"},
	)
)
