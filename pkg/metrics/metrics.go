package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersAccepted counts orders acknowledged by the create sweep, by side.
var OrdersAccepted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "venuesim_orders_accepted_total",
		Help: "Total number of orders acknowledged by the create sweep",
	},
	[]string{"side"},
)

// OrdersRejected counts validation rejects by reject code.
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "venuesim_orders_rejected_total",
		Help: "Total number of orders rejected by pre-trade validation",
	},
	[]string{"code"},
)

// TradesExecuted counts on-book fills (one per leg pair).
var TradesExecuted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "venuesim_trades_executed_total",
		Help: "Total number of on-book matches executed",
	},
)

// NegotiatedTrades counts off-book TCR negotiations by terminal status.
var NegotiatedTrades = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "venuesim_negotiated_trades_total",
		Help: "Total number of off-book negotiations reaching a terminal status",
	},
	[]string{"status"},
)

// SweepDuration records the latency distribution of one full scheduler tick.
var SweepDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "venuesim_sweep_duration_seconds",
		Help:    "Latency in seconds of one full lifecycle sweep tick",
		Buckets: prometheus.DefBuckets,
	},
)

// OpenOrders tracks the number of non-closed orders in the book.
var OpenOrders = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "venuesim_open_orders",
		Help: "Number of non-closed orders currently in the book",
	},
)

func init() {
	prometheus.MustRegister(OrdersAccepted, OrdersRejected, TradesExecuted)
	prometheus.MustRegister(NegotiatedTrades, SweepDuration, OpenOrders)
}
