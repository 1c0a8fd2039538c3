package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityIngestedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "practice_engine",
		Subsystem: "persistence",
		Name:      "last_activity_ingested_timestamp_seconds",
		Help:      "Unix timestamp of the most recent practice or login record persisted to Postgres.",
	})
	notificationLoggedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "practice_engine",
		Subsystem: "persistence",
		Name:      "last_notification_logged_timestamp_seconds",
		Help:      "Unix timestamp of the most recent dedup log entry written.",
	})
)

func init() {
	prometheus.MustRegister(activityIngestedGauge, notificationLoggedGauge)
}

// RecordActivityIngested updates the ingest watermark gauge.
func RecordActivityIngested(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityIngestedGauge.Set(float64(ts.Unix()))
}

// RecordNotificationLogged updates the dedup log watermark gauge.
func RecordNotificationLogged(ts time.Time) {
	if ts.IsZero() {
		return
	}
	notificationLoggedGauge.Set(float64(ts.Unix()))
}
