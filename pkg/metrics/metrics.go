package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandlesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_dropped_total", Help: "Candles dropped because a subscriber queue was full"},
		[]string{"stream"},
	)
	CandlesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_rejected_total", Help: "Out-of-order candles discarded by the feed"},
		[]string{"stream"},
	)
	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Stream reconnect attempts"},
		[]string{"exchange"},
	)
	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_rejections_total", Help: "Signals rejected by the risk manager"},
		[]string{"reason"},
	)
	SignalsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_dispatched_total", Help: "Signals accepted by the dispatcher"},
		[]string{"strategy", "action"},
	)
	DeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dead_letters_total", Help: "Deliveries that exhausted their retries"},
		[]string{"consumer"},
	)
	Backtests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtests_total", Help: "Finished backtest runs by outcome"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(CandlesDropped, CandlesRejected, FeedReconnects, RiskRejections, SignalsDispatched, DeadLetters, Backtests)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
