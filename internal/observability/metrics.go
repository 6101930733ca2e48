// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ledger metrics
	PositionsOpened *prometheus.CounterVec
	OrdersClosed    *prometheus.CounterVec
	OpenPositions   prometheus.Gauge
	Equity          prometheus.Gauge
	Balance         prometheus.Gauge

	// Backtest metrics
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
	BarsProcessed    prometheus.Counter

	// Optimizer metrics
	CombinationsEvaluated prometheus.Counter
	CombinationsDropped   prometheus.Counter
	OptimizationDuration  prometheus.Histogram

	// Walk-forward metrics
	WindowsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on reg.
// Each registry accepts one instance per namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "perp_strategy_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		PositionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "positions_opened_total",
			Help:      "Total number of positions opened by direction",
		}, []string{"direction"}),
		OrdersClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "orders_closed_total",
			Help:      "Total number of closed orders by exit reason",
		}, []string{"reason"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_positions",
			Help:      "Current number of open positions",
		}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "equity",
			Help:      "Current portfolio equity",
		}),
		Balance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "balance",
			Help:      "Current free balance",
		}),

		// Backtest metrics
		BacktestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		BacktestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		BarsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "bars_processed_total",
			Help:      "Total number of candles replayed",
		}),

		// Optimizer metrics
		CombinationsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "combinations_evaluated_total",
			Help:      "Total number of parameter combinations backtested",
		}),
		CombinationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "combinations_dropped_total",
			Help:      "Total number of combinations dropped by the combination cap",
		}),
		OptimizationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "duration_seconds",
			Help:      "Grid search duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Walk-forward metrics
		WindowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "walkforward",
			Name:      "windows_total",
			Help:      "Total number of walk-forward windows by status",
		}, []string{"status"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordPositionOpened counts an opened position.
func (m *Metrics) RecordPositionOpened(direction string) {
	if m == nil {
		return
	}
	m.PositionsOpened.WithLabelValues(direction).Inc()
}

// RecordOrderClosed counts a closed order.
func (m *Metrics) RecordOrderClosed(reason string) {
	if m == nil {
		return
	}
	m.OrdersClosed.WithLabelValues(reason).Inc()
}

// UpdatePortfolio updates the portfolio gauges.
func (m *Metrics) UpdatePortfolio(openPositions int, balance, equity float64) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(openPositions))
	m.Balance.Set(balance)
	m.Equity.Set(equity)
}

// RecordBacktest records a finished backtest run.
func (m *Metrics) RecordBacktest(status string, bars int, d time.Duration) {
	if m == nil {
		return
	}
	m.BacktestRuns.WithLabelValues(status).Inc()
	m.BacktestDuration.Observe(d.Seconds())
	m.BarsProcessed.Add(float64(bars))
}

// RecordCombination counts one evaluated combination.
func (m *Metrics) RecordCombination() {
	if m == nil {
		return
	}
	m.CombinationsEvaluated.Inc()
}

// RecordOptimization records a finished grid search.
func (m *Metrics) RecordOptimization(dropped int, d time.Duration) {
	if m == nil {
		return
	}
	m.CombinationsDropped.Add(float64(dropped))
	m.OptimizationDuration.Observe(d.Seconds())
}

// RecordWindow counts a walk-forward window by status ("processed" or "skipped").
func (m *Metrics) RecordWindow(status string) {
	if m == nil {
		return
	}
	m.WindowsTotal.WithLabelValues(status).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
