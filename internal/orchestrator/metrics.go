package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the orchestrator's Prometheus gauges, one series per
// keyspace/table label pair. Grounded on the teacher pack's
// cmd/server/prometheus.go (plain prometheus.Gauge/GaugeVec registered
// once at startup, updated from a poll loop) — generalized from
// rollingstone's single-table simulator metrics to per-table vectors
// since this module runs many tables per process.
type Metrics struct {
	Backlog          *prometheus.GaugeVec
	PendingJobs      *prometheus.GaugeVec
	PermitsGranted   *prometheus.GaugeVec
	PermitsWaited    *prometheus.GaugeVec
	MaxLevel         *prometheus.GaugeVec
	LastJobError     *prometheus.GaugeVec
}

// NewMetrics builds and registers the gauge vectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with a process
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	labels := []string{"keyspace", "table"}
	m := &Metrics{
		Backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compaction_backlog_bytes",
			Help: "Estimated compaction backlog in bytes",
		}, labels),
		PendingJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compaction_pending_jobs",
			Help: "Estimated number of compactions still to run",
		}, labels),
		PermitsGranted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compaction_permits_granted_total",
			Help: "Regular compaction permits granted",
		}, labels),
		PermitsWaited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compaction_permits_waited_total",
			Help: "Regular compaction permit acquisitions that had to wait",
		}, labels),
		MaxLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compaction_max_level",
			Help: "Highest populated level in the table's main SR set",
		}, labels),
		LastJobError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compaction_last_job_failed",
			Help: "1 if the table's most recent compaction job failed, else 0",
		}, labels),
	}
	reg.MustRegister(m.Backlog, m.PendingJobs, m.PermitsGranted, m.PermitsWaited, m.MaxLevel, m.LastJobError)
	return m
}
