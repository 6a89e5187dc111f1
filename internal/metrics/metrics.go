// Package metrics exposes the engine's Prometheus instrumentation and
// the HTTP listener that serves it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksReceived counts raw quote pushes from the feed.
	TicksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_ticks_received_total",
		Help: "Raw quote pushes received from the market data feed.",
	})

	// Cycles counts throttled evaluation cycles actually run.
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_cycles_total",
		Help: "Evaluation cycles run after throttling.",
	})

	// EmptyCycles counts cycles dropped without evaluation, outside
	// trading sessions or on non-trading days.
	EmptyCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_empty_cycles_total",
		Help: "Cycles dropped outside trading sessions.",
	})

	// CycleDuration observes wall time per evaluation cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_cycle_duration_seconds",
		Help:    "Wall time of one evaluation cycle.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// OrdersSubmitted counts orders handed to the broker, by side.
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_orders_submitted_total",
		Help: "Orders submitted to the broker delegate.",
	}, []string{"side"})

	// Fills counts trade confirmations received, by side.
	Fills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_fills_total",
		Help: "Trade confirmations received from the broker.",
	}, []string{"side"})

	// OrderErrors counts broker rejections.
	OrderErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_order_errors_total",
		Help: "Order rejections received from the broker.",
	})

	// AdmissionSkips counts entry candidates passed over, by reason.
	AdmissionSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_admission_skips_total",
		Help: "Entry candidates skipped during admission, by reason.",
	}, []string{"reason"})

	// RuleFired counts exit rule decisions, by rule label.
	RuleFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_rule_fired_total",
		Help: "Exit rule decisions, labeled by the rule that fired.",
	}, []string{"rule"})

	// PositionsHeld gauges the current holding count.
	PositionsHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_positions_held",
		Help: "Number of positions currently held.",
	})

	// AccountCash gauges the account's available cash.
	AccountCash = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_account_cash",
		Help: "Available cash in the trading account.",
	})
)

// ObserveCycle records one cycle's duration and increments the counter.
func ObserveCycle(start time.Time) {
	Cycles.Inc()
	CycleDuration.Observe(time.Since(start).Seconds())
}

// Serve starts the metrics endpoint on addr. It blocks; run it in its
// own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
