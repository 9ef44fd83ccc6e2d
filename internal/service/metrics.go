package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes run-level counters for daemon mode.
type Metrics struct {
	runsTotal      prometheus.Counter
	decisionsTotal *prometheus.CounterVec
	fdbEntries     prometheus.Gauge
}

// NewMetrics registers the service collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autocable_runs_total",
			Help: "Completed auto-cabling runs.",
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autocable_decisions_total",
			Help: "Correlation decisions by status.",
		}, []string{"status"}),
		fdbEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autocable_fdb_entries",
			Help: "FDB entries collected in the most recent run.",
		}),
	}
	reg.MustRegister(m.runsTotal, m.decisionsTotal, m.fdbEntries)
	return m
}

func (m *Metrics) observeRun(summary RunSummary, fdbEntries int) {
	if m == nil {
		return
	}
	m.runsTotal.Inc()
	m.fdbEntries.Set(float64(fdbEntries))
	m.decisionsTotal.WithLabelValues("created").Add(float64(summary.Created))
	m.decisionsTotal.WithLabelValues("exists").Add(float64(summary.Exists))
	m.decisionsTotal.WithLabelValues("skip_non_access").Add(float64(summary.Skipped))
	m.decisionsTotal.WithLabelValues("ambiguous").Add(float64(summary.Ambiguous))
	m.decisionsTotal.WithLabelValues("not_found").Add(float64(summary.NotFound))
	m.decisionsTotal.WithLabelValues("pending").Add(float64(summary.Pending))
	m.decisionsTotal.WithLabelValues("error").Add(float64(summary.Errors))
	m.decisionsTotal.WithLabelValues("mismatch").Add(float64(summary.Mismatch))
}
