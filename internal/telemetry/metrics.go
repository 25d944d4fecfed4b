// Package telemetry exposes operational Prometheus collectors for a
// running backreplay server: job throughput and duration, not the
// per-strategy backtest metrics in internal/metrics. Grounded on
// chidi150c-coinbase's metrics.go (package-level collector vars registered
// once, served at /metrics via promhttp).
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backreplay_jobs_total",
			Help: "Completed backtest jobs by outcome.",
		},
		[]string{"outcome"}, // success | no_trades | early_stop; runs that return an error are not counted
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backreplay_job_duration_seconds",
			Help:    "Wall-clock duration of a full run (load+kernel+accountant+metrics).",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	TradeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backreplay_trade_events_total",
			Help: "Trade journal events emitted by the kernel, by action.",
		},
		[]string{"action"},
	)

	ActiveDeals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backreplay_active_deals",
			Help: "Currently-open deals in the most recently completed run.",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal, JobDuration, TradeEventsTotal, ActiveDeals)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
