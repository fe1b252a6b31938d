package bridge

import "github.com/prometheus/client_golang/prometheus"

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Dispatched commands by name and outcome",
		},
		[]string{"command", "outcome"},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "tasks_total",
			Help:      "Capture tasks executed by the worker",
		},
		[]string{"command", "result"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "task_duration_seconds",
			Help:      "Duration of capture tasks in seconds, cues included",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"command"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Result events by outcome (delivered or dropped)",
		},
		[]string{"outcome"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "queue_depth",
			Help:      "Capture tasks waiting for the worker",
		},
	)

	tasksDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "tasks_discarded_total",
			Help:      "Queued tasks discarded by teardown",
		},
	)

	cueFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fpbridge",
			Subsystem: "bridge",
			Name:      "cue_failures_total",
			Help:      "Feedback cues that failed or panicked",
		},
	)
)

func init() {
	prometheus.MustRegister(commandsTotal, tasksTotal, taskDuration, eventsTotal, queueDepth, tasksDiscardedTotal, cueFailuresTotal)
}
