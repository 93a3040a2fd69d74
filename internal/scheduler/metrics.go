package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitewatch/sitewatch/internal/domain"
)

// Metrics exposes scheduler and run counters to Prometheus.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RecordsInserted prometheus.Counter
	RunningJobs     prometheus.Gauge
	DueJobs         prometheus.Gauge
	DispatchSkipped prometheus.Counter
}

// NewMetrics registers the scheduler metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_runs_total",
			Help: "Completed crawl runs by outcome.",
		}, []string{"outcome"}),
		RecordsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitewatch_records_inserted_total",
			Help: "Content records inserted by crawl runs.",
		}),
		RunningJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sitewatch_running_jobs",
			Help: "Jobs currently executing.",
		}),
		DueJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sitewatch_due_jobs",
			Help: "Jobs due at the last due-check tick.",
		}),
		DispatchSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitewatch_dispatch_skipped_total",
			Help: "Due jobs skipped because their run-lock was held.",
		}),
	}
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(run *domain.CrawlRun) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(run.Outcome)).Inc()
	m.RecordsInserted.Add(float64(run.RecordsProduced))
}
