package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the engine and dispatcher
type Metrics struct {
	Passes           *prometheus.CounterVec
	PassDuration     *prometheus.HistogramVec
	ActionsScheduled *prometheus.CounterVec
	WorkUnits        *prometheus.CounterVec
	WorkDuration     *prometheus.HistogramVec
	AppendConflicts  *prometheus.CounterVec
	Instances        *prometheus.CounterVec
}

const namespace = "braid"

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replay_passes_total",
				Help:      "Replay passes by outcome",
			},
			[]string{"orchestration", "outcome"},
		),
		PassDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "replay_pass_duration_seconds",
				Help:      "Duration of replay passes",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"orchestration"},
		),
		ActionsScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_scheduled_total",
				Help:      "Actions scheduled by kind",
			},
			[]string{"kind"},
		),
		WorkUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_units_total",
				Help:      "Work unit executions by result",
			},
			[]string{"work_unit", "result"},
		),
		WorkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "work_unit_duration_seconds",
				Help:      "Duration of work unit executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"work_unit"},
		),
		AppendConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "append_conflicts_total",
				Help:      "History append conflicts by component",
			},
			[]string{"component"},
		),
		Instances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_total",
				Help:      "Instances reaching a lifecycle status",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(
		m.Passes, m.PassDuration, m.ActionsScheduled, m.WorkUnits,
		m.WorkDuration, m.AppendConflicts, m.Instances,
	)
	return m
}

// Discard returns Metrics registered with a private registry
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObservePass records a finished replay pass
func (m *Metrics) ObservePass(name, outcome string, start time.Time) {
	m.Passes.WithLabelValues(name, outcome).Inc()
	m.PassDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// ObserveWork records a finished work unit execution
func (m *Metrics) ObserveWork(name string, err error, start time.Time) {
	result := "completed"
	if err != nil {
		result = "failed"
	}
	m.WorkUnits.WithLabelValues(name, result).Inc()
	m.WorkDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// Conflict records a history append conflict
func (m *Metrics) Conflict(component string) {
	m.AppendConflicts.WithLabelValues(component).Inc()
}
