package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksProcessed tracks completed tasks per worker role and status
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_tasks_processed_total",
			Help: "Total number of tasks processed",
		},
		[]string{"role", "status"},
	)

	// TaskRetries tracks retry attempts per classified error kind
	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_task_retries_total",
			Help: "Total number of failed task attempts",
		},
		[]string{"error_kind"},
	)

	// TaskDuration tracks end-to-end task execution latency
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_task_duration_seconds",
			Help:    "Task execution duration in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	// MessagesNacked tracks negative acknowledgements per queue
	MessagesNacked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_messages_nacked_total",
			Help: "Total number of negatively acknowledged messages",
		},
		[]string{"queue"},
	)

	// MessagesDeadLettered tracks messages routed to the dead-letter queue
	MessagesDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_messages_dead_lettered_total",
			Help: "Total number of messages routed to the dead-letter queue",
		},
		[]string{"queue"},
	)

	// QueueDepth tracks the current depth of each queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_queue_depth",
			Help: "Current number of messages waiting in the queue",
		},
		[]string{"queue"},
	)

	// NotificationsSent tracks notification dispatch outcomes
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_notifications_total",
			Help: "Total number of notification dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// WorkersRunning tracks live worker processes per role
	WorkersRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_workers_running",
			Help: "Number of live worker processes observed by the supervisor",
		},
		[]string{"role"},
	)

	// ReconcileActions tracks supervisor actions per cycle
	ReconcileActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_reconcile_actions_total",
			Help: "Total number of supervisor reconcile actions",
		},
		[]string{"action"},
	)

	// LastConsume tracks the last time a worker pulled a message
	LastConsume = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_worker_last_consume_timestamp_seconds",
			Help: "Unix timestamp of the last consumed message per role",
		},
		[]string{"role"},
	)
)
