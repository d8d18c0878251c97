// Package metrics holds the process-wide Prometheus collectors exposed
// on GET /metrics, grounded on the pack's own metrics.go convention of
// package-level vars plus an explicit Register.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ActiveJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomusic",
		Name:      "active_jobs",
		Help:      "Number of jobs currently running, by kind.",
	}, []string{"kind"})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomusic",
		Name:      "jobs_total",
		Help:      "Total jobs reaching a terminal state, by kind and state.",
	}, []string{"kind", "state"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomusic",
		Name:      "download_queue_depth",
		Help:      "Number of items currently pending in the download queue.",
	}, []string{"status"})

	SeparatorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomusic",
		Name:      "separator_duration_seconds",
		Help:      "Wall-clock duration of a single separator driver run.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"driver"})
)

// Register adds every collector to reg. Called once at process startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(ActiveJobs, JobsTotal, QueueDepth, SeparatorDuration)
}
