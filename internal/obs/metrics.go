// Package obs provides Prometheus instrumentation for the trading core.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsTotal counts events published to the bus, partitioned by kind.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_events_total",
		Help: "Total events published to the bus",
	}, []string{"kind"})

	// SignalsAccepted counts signals that passed every adapter gate.
	SignalsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecore_signals_accepted_total",
		Help: "Signals accepted by the signal adapter",
	})

	// SignalsRejected counts rejected signals, partitioned by reason.
	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_signals_rejected_total",
		Help: "Signals rejected by the signal adapter",
	}, []string{"reason"})

	// OrdersTotal counts processed orders by final status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_orders_total",
		Help: "Orders processed by the trade executor",
	}, []string{"status"})

	// FillsTotal counts published fills by side.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_fills_total",
		Help: "Fill events published",
	}, []string{"side"})

	// StrategyErrors counts handler errors per strategy instance.
	StrategyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_strategy_errors_total",
		Help: "Errors raised while routing events to strategies",
	}, []string{"strategy"})

	// QuarantinedStrategies tracks instances currently in ERROR state.
	QuarantinedStrategies = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradecore_quarantined_strategies",
		Help: "Strategy instances excluded from routing",
	})

	// QueueDepth tracks the buffered events per strategy queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradecore_strategy_queue_depth",
		Help: "Buffered events per strategy queue",
	}, []string{"strategy"})

	// TicksDropped counts market events dropped at a full strategy queue.
	TicksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_strategy_ticks_dropped_total",
		Help: "Market events dropped because a strategy queue was full",
	}, []string{"strategy"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
