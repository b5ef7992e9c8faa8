package taskmanager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the task manager collectors. A nil *Metrics records nothing.
type Metrics struct {
	taskDuration *prometheus.HistogramVec
	queued       *prometheus.GaugeVec
	reloads      *prometheus.CounterVec
	state        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "termforge",
			Subsystem: "taskmanager",
			Name:      "task_duration_seconds",
			Help:      "Duration of managed tasks, by ontology, kind and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"ontology", "kind", "outcome"}),
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "termforge",
			Subsystem: "taskmanager",
			Name:      "queued_tasks",
			Help:      "Tasks waiting for exclusive access to an ontology.",
		}, []string{"ontology"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termforge",
			Subsystem: "taskmanager",
			Name:      "reloads_total",
			Help:      "Graph reloads, by ontology and result.",
		}, []string{"ontology", "result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "termforge",
			Subsystem: "taskmanager",
			Name:      "state",
			Help:      "Current lifecycle state of an ontology (0 unloaded .. 5 failed).",
		}, []string{"ontology"}),
	}
	if reg != nil {
		reg.MustRegister(m.taskDuration, m.queued, m.reloads, m.state)
	}
	return m
}

func (m *Metrics) observeTask(ontology, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(ontology, kind, outcome).Observe(d.Seconds())
}

func (m *Metrics) setQueued(ontology string, n int) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(ontology).Set(float64(n))
}

func (m *Metrics) reloaded(ontology, result string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(ontology, result).Inc()
}

func (m *Metrics) setState(ontology string, s State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(ontology).Set(float64(s))
}
