package trace

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the spine's size and effort accounting as prometheus
// instruments. Merge backlog growing without bound, or an updates gauge that
// never shrinks, are the observable symptoms of a caller that stops exerting
// fuel or never advances its frontier; neither is an error the spine reports
// any other way.
//
// Instruments are written only from the goroutine owning the spine; the
// prometheus client handles scrape-side synchronization.
type Metrics struct {
	BatchesInserted prometheus.Counter
	MergesStarted   prometheus.Counter
	MergesCompleted prometheus.Counter
	FuelSpent       prometheus.Counter
	Updates         prometheus.Gauge
	Batches         prometheus.Gauge
	MergeBacklog    prometheus.Gauge
}

// NewMetrics returns unregistered spine instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		BatchesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "difftrace_batches_inserted_total",
			Help: "Total batches inserted into the spine",
		}),
		MergesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "difftrace_merges_started_total",
			Help: "Total batch merges started by the geometric policy",
		}),
		MergesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "difftrace_merges_completed_total",
			Help: "Total batch merges run to completion",
		}),
		FuelSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "difftrace_merge_fuel_spent_total",
			Help: "Total merge fuel consumed across inserts and exertions",
		}),
		Updates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "difftrace_spine_updates",
			Help: "Updates currently stored across all spine batches",
		}),
		Batches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "difftrace_spine_batches",
			Help: "Batches currently held by the spine",
		}),
		MergeBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "difftrace_spine_merge_backlog",
			Help: "Merges currently in progress",
		}),
	}
}

// MustRegister registers all instruments with reg, panicking on collision.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.BatchesInserted,
		m.MergesStarted,
		m.MergesCompleted,
		m.FuelSpent,
		m.Updates,
		m.Batches,
		m.MergeBacklog,
	)
}
