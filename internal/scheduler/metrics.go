package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tasksDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to workers.",
		},
	)

	tasksRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_tasks_recovered_total",
			Help: "Total number of running tasks reconciled by recovery.",
		},
		[]string{"outcome", "reason"},
	)

	claimContention = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_claim_contention_total",
			Help: "Conditional task claims lost to a concurrent scheduler.",
		},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_tick_duration_seconds",
			Help:    "Dispatch tick duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_queue_depth",
			Help: "Number of queued tasks observed at the last tick.",
		},
	)

	workersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_workers_online",
			Help: "Number of workers not offline at the last sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksDispatched)
	prometheus.MustRegister(tasksRecovered)
	prometheus.MustRegister(claimContention)
	prometheus.MustRegister(tickDuration)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(workersOnline)
}
