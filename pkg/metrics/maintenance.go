package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records scheduled housekeeping runs.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	pruned   prometheus.Counter
}

// NewMaintenanceMetrics registers the maintenance metrics on the provided registerer.
func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions, by job and result.",
	}, []string{"job", "result"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "basket_snapshots_pruned_total",
		Help: "Stale basket snapshots deleted by the retention job.",
	})
	reg.MustRegister(duration, runs, pruned)
	return &MaintenanceMetrics{duration: duration, runs: runs, pruned: pruned}
}

// ObserveRun records the duration and result of one job execution.
func (m *MaintenanceMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.runs.WithLabelValues(job, result).Inc()
}

// AddPruned counts deleted basket snapshots.
func (m *MaintenanceMetrics) AddPruned(rows int64) {
	if m == nil || m.pruned == nil || rows <= 0 {
		return
	}
	m.pruned.Add(float64(rows))
}
