// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	// Feed metrics
	PoolEventsProcessed  prometheus.Counter
	PriceEventsProcessed prometheus.Counter
	MalformedEvents      prometheus.Counter

	// Engine metrics
	TokensTracked     prometheus.Gauge
	TokensAdmitted    prometheus.Counter
	TokensRejected    *prometheus.CounterVec
	SignalsEmitted    *prometheus.CounterVec
	RealizedProfitSol prometheus.Gauge
	InvestedSol       prometheus.Gauge

	// Risk metrics
	RiskProbesInFlight prometheus.Gauge
	RiskProbesTotal    *prometheus.CounterVec
	DevExitProbesTotal *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "momentum_bot"
	}

	return &Metrics{
		PoolEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pool_events_processed_total",
			Help:      "Total number of pool-creation events processed",
		}),
		PriceEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "price_events_processed_total",
			Help:      "Total number of trade events processed",
		}),
		MalformedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "malformed_events_total",
			Help:      "Total number of events dropped as malformed",
		}),
		TokensTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tokens_tracked",
			Help:      "Number of tokens currently tracked",
		}),
		TokensAdmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tokens_admitted_total",
			Help:      "Total number of tokens admitted",
		}),
		TokensRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tokens_rejected_total",
			Help:      "Total number of tokens rejected or untracked, by cause",
		}, []string{"cause"}),
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "signals_emitted_total",
			Help:      "Total number of trade signals emitted",
		}, []string{"action", "reason"}),
		RealizedProfitSol: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "realized_profit_sol",
			Help:      "Cumulative realized profit in SOL",
		}),
		InvestedSol: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "invested_sol",
			Help:      "SOL currently invested in open positions",
		}),
		RiskProbesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "probes_in_flight",
			Help:      "Risk assessments currently running",
		}),
		RiskProbesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "probes_total",
			Help:      "Total risk assessments by outcome",
		}, []string{"outcome"}),
		DevExitProbesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "dev_exit_probes_total",
			Help:      "Total dev-exit probes by result",
		}, []string{"result"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Solana RPC call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
