package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics tracks background job runs.
type SchedulerMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	repaired *prometheus.CounterVec
}

func NewSchedulerMetrics() *SchedulerMetrics {
	return NewSchedulerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewSchedulerMetricsWithRegisterer(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduler job runs by job.",
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_errors_total",
			Help: "Scheduler job failures by job.",
		}, []string{"job"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_timeouts_total",
			Help: "Scheduler jobs that hit their deadline.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Scheduler job latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		repaired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_drift_profiles_total",
			Help: "Profiles visited by the drift sweep by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.errors, m.timeouts, m.duration, m.repaired)
	}
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

// ObserveDrift counts one profile handled by the drift sweep.
func (m *SchedulerMetrics) ObserveDrift(result string) {
	if m == nil {
		return
	}
	m.repaired.WithLabelValues(result).Inc()
}
