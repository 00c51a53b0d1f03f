// Package metrics exposes pool activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"strconv"
	"time"
)

// Metrics holds the Prometheus collectors updated by a pool.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksDropped   prometheus.Counter
	TasksRouted    *prometheus.CounterVec
	TaskLatency    prometheus.Histogram
	ActiveWorkers  prometheus.Gauge
	QueueDepth     *prometheus.GaugeVec
	PermitsFree    prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is useful in tests.
func New(namespace, subsystem string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks whose body ran without error",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks whose body returned an error or panicked",
		}),
		TasksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_dropped_total",
			Help:      "Total number of tasks abandoned before reaching a worker",
		}),
		TasksRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_routed_total",
			Help:      "Total number of tasks routed to each worker",
		}, []string{"worker"}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_latency_seconds",
			Help:      "Histogram of task execution latency",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_workers",
			Help:      "Current number of running workers",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Run-queue length of each worker at the last sample",
		}, []string{"worker"}),
		PermitsFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "permits_available",
			Help:      "Dispatcher permits available at the last sample",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Submitted records a task entering the pool.
func (m *Metrics) Submitted() {
	m.TasksSubmitted.Inc()
}

// Routed records a task handed to worker id.
func (m *Metrics) Routed(id int) {
	m.TasksRouted.WithLabelValues(strconv.Itoa(id)).Inc()
}

// Dropped records a task abandoned before routing.
func (m *Metrics) Dropped() {
	m.TasksDropped.Inc()
}

// Done records a finished task.
func (m *Metrics) Done(latency time.Duration, err error) {
	m.TaskLatency.Observe(latency.Seconds())
	if err != nil {
		m.TasksFailed.Inc()
		return
	}
	m.TasksCompleted.Inc()
}

// WorkerStarted and WorkerStopped track the number of running workers.
func (m *Metrics) WorkerStarted() {
	m.ActiveWorkers.Inc()
}

func (m *Metrics) WorkerStopped() {
	m.ActiveWorkers.Dec()
}

// Sample records point-in-time queue depths and free permits.
func (m *Metrics) Sample(depths []int, permits int64) {
	for id, depth := range depths {
		m.QueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(depth))
	}
	m.PermitsFree.Set(float64(permits))
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.TasksDropped,
		m.TasksRouted,
		m.TaskLatency,
		m.ActiveWorkers,
		m.QueueDepth,
		m.PermitsFree,
	}
}
