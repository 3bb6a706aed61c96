package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome.",
		},
		[]string{"outcome"},
	)

	tasksPushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "tasks_pushed_total",
			Help:      "Tasks pushed to a remote.",
		},
		[]string{"remote"},
	)

	tasksPulled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "tasks_pulled_total",
			Help:      "Tasks pulled from a remote.",
		},
		[]string{"remote"},
	)

	conflictsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "conflicts_detected_total",
			Help:      "Conflicts raised by the detector.",
		},
	)

	conflictsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "conflicts_resolved_total",
			Help:      "Conflicts resolved, by policy.",
		},
		[]string{"policy"},
	)

	queueEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "queue_enqueued_total",
			Help:      "Queue items enqueued by type.",
		},
		[]string{"type"},
	)

	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "queue_dead_letters_total",
			Help:      "Queue items moved to the dead-letter list.",
		},
		[]string{"type"},
	)

	malformedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "malformed_remote_records_total",
			Help:      "Remote records skipped during defensive mapping.",
		},
		[]string{"remote"},
	)

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "api_requests_total",
			Help:      "Admin API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tasksync",
			Name:      "sync_cycle_duration_seconds",
			Help:      "Wall time of a full sync cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			syncCycles, tasksPushed, tasksPulled,
			conflictsDetected, conflictsResolved,
			queueEnqueued, deadLetters, malformedRecords,
			apiRequests, cycleDuration,
		)
	})
}

func IncSyncCycle(outcome string)         { syncCycles.WithLabelValues(outcome).Inc() }
func AddTasksPushed(remote string, n int) { tasksPushed.WithLabelValues(remote).Add(float64(n)) }
func AddTasksPulled(remote string, n int) { tasksPulled.WithLabelValues(remote).Add(float64(n)) }
func IncConflictsDetected()               { conflictsDetected.Inc() }
func IncConflictsResolved(policy string)  { conflictsResolved.WithLabelValues(policy).Inc() }
func IncQueueEnqueued(itemType string)    { queueEnqueued.WithLabelValues(itemType).Inc() }
func IncDeadLetters(itemType string)      { deadLetters.WithLabelValues(itemType).Inc() }
func IncMalformedRecord(remote string)    { malformedRecords.WithLabelValues(remote).Inc() }
func IncAPIRequest(endpoint string)       { apiRequests.WithLabelValues(endpoint).Inc() }
func ObserveCycleDuration(sec float64)    { cycleDuration.Observe(sec) }
