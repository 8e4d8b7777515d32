package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	TicksTotal     *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	DueTasks       prometheus.Gauge
	TasksTotal     *prometheus.CounterVec
	PollsTotal     *prometheus.CounterVec
	PollDuration   prometheus.Histogram
	ChecksStored   prometheus.Counter
	EntriesCreated *prometheus.CounterVec
	BreakerState   prometheus.Gauge
}

// NewMetrics creates new prometheus metrics registered on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "The total number of scheduler ticks by result",
		}, []string{"result"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Time taken to process one scheduler tick",
			Buckets:   prometheus.DefBuckets,
		}),
		DueTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_due_tasks",
			Help:      "Number of tasks found due on the last tick",
		}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks_total",
			Help:      "The total number of processed tracking tasks by result",
		}, []string{"result"}),
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ais_polls_total",
			Help:      "The total number of AIS provider polls by outcome",
		}, []string{"outcome"}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ais_poll_duration_seconds",
			Help:      "Time taken by AIS provider requests",
			Buckets:   prometheus.DefBuckets,
		}),
		ChecksStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_checks_stored_total",
			Help:      "The total number of stored position checks",
		}),
		EntriesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sea_time_entries_created_total",
			Help:      "The total number of sea-time entries created by policy",
		}, []string{"policy"}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ais_circuit_breaker_state",
			Help:      "AIS circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
	}
}
