// Package metrics exposes the service's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sessions_started_total",
		Help: "Sessions created via start.",
	})
	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sessions_completed_total",
		Help: "Sessions completed by user action.",
	})
	SessionsAutoCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sessions_autocompleted_total",
		Help: "Expired sessions completed as a side effect of a read.",
	})
	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sessions_stopped_total",
		Help: "Sessions stopped, including supersession by a new start.",
	})
	ConflictsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sync_conflicts_resolved_total",
		Help: "Concurrent-update conflicts resolved by the sync coordinator.",
	})
	OpRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sync_op_retries_total",
		Help: "Retry attempts for queued datastore operations.",
	})
	OpsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustracker_sync_ops_dropped_total",
		Help: "Queued operations dropped after exhausting retries.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focustracker_sync_queue_depth",
		Help: "Operations waiting in the durable retry queue.",
	})
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focustracker_online_users",
		Help: "Users currently connected to the realtime feed.",
	})
)
