package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the engine's prometheus metrics.
type Collector struct {
	reg *prometheus.Registry

	PollCycles   prometheus.Counter
	PollFailures prometheus.Counter

	ReferenceRefreshes     prometheus.Counter
	ReferenceRefreshErrs   prometheus.Counter
	SnapshotRefreshes      prometheus.Counter
	SnapshotRefreshErrs    prometheus.Counter
	ReferenceRowsLoaded    *prometheus.CounterVec // table label
	LiveVehicles           prometheus.Gauge
	PollCycleDuration      prometheus.Histogram
	ReferenceLoadDuration  prometheus.Histogram
	LastSuccessfulPollUnix prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busview_poll_cycles_total",
			Help: "Total live feed poll cycles attempted.",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busview_poll_failures_total",
			Help: "Total poll cycles that failed for the interval.",
		}),
		ReferenceRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busview_reference_refreshes_total",
			Help: "Total completed reference refreshes.",
		}),
		ReferenceRefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busview_reference_refresh_errors_total",
			Help: "Total reference refreshes that failed.",
		}),
		SnapshotRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busview_snapshot_refreshes_total",
			Help: "Total committed live snapshot refreshes.",
		}),
		SnapshotRefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busview_snapshot_refresh_errors_total",
			Help: "Total snapshot refreshes that failed.",
		}),
		ReferenceRowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busview_reference_rows_loaded_total",
			Help: "Rows loaded into reference tables.",
		}, []string{"table"}),
		LiveVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busview_live_vehicles",
			Help: "Vehicles in the current committed snapshot.",
		}),
		PollCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busview_poll_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle including reconciliation and commit.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ReferenceLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busview_reference_load_duration_seconds",
			Help:    "Duration of a full reference refresh including fetch and load.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		LastSuccessfulPollUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busview_last_successful_poll_timestamp_seconds",
			Help: "Unix time of the last poll cycle that committed a snapshot.",
		}),
	}

	reg.MustRegister(
		c.PollCycles, c.PollFailures,
		c.ReferenceRefreshes, c.ReferenceRefreshErrs,
		c.SnapshotRefreshes, c.SnapshotRefreshErrs,
		c.ReferenceRowsLoaded, c.LiveVehicles,
		c.PollCycleDuration, c.ReferenceLoadDuration,
		c.LastSuccessfulPollUnix,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
