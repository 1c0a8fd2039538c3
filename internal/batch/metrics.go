package batch

import "github.com/prometheus/client_golang/prometheus"

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practice_engine",
		Subsystem: "batch",
		Name:      "runs_total",
		Help:      "Batch passes, labeled by outcome (completed, skipped, failed).",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "practice_engine",
		Subsystem: "batch",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full batch pass.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	notificationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practice_engine",
		Subsystem: "batch",
		Name:      "notifications_total",
		Help:      "Eligible notifications, labeled by kind and outcome (sent, failed).",
	}, []string{"kind", "outcome"})

	userErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "practice_engine",
		Subsystem: "batch",
		Name:      "user_errors_total",
		Help:      "Users whose evaluation aborted with an unexpected error.",
	})

	// Sends that succeeded but could not be recorded in the dedup log
	logErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "practice_engine",
		Subsystem: "batch",
		Name:      "log_errors_total",
		Help:      "Dedup log appends that failed after a successful delivery.",
	})
)

func init() {
	prometheus.MustRegister(runsCounter, runDuration, notificationsCounter, userErrorsCounter, logErrorsCounter)
}
