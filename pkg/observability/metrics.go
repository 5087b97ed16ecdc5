package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a Prometheus-backed registry of runner and optimizer series.
// A nil *Metrics is valid everywhere it's accepted — every recording method
// guards against it, so wiring metrics is opt-in for callers that don't
// need a scrape endpoint (e.g. a one-off backtest run).
type Metrics struct {
	registry *prometheus.Registry

	ordersSubmitted *prometheus.CounterVec
	ordersFilled    *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec

	signalsGenerated *prometheus.CounterVec

	tickLatency *prometheus.HistogramVec

	combinationsCompleted prometheus.Counter
	combinationsTotal     prometheus.Gauge

	runnerState *prometheus.GaugeVec

	checkpointsTaken prometheus.Counter
	syncDiscrepancy  *prometheus.CounterVec
}

// MetricsConfig names the service for metric labels.
type MetricsConfig struct {
	ServiceName string
	Namespace   string
}

// NewMetrics builds and registers the runner/optimizer metric series.
func NewMetrics(cfg MetricsConfig) *Metrics {
	ns := cfg.Namespace
	if ns == "" {
		ns = "quantcore"
	}
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "orders_submitted_total",
			Help:      "Total number of orders submitted by a runner.",
		}, []string{"runner_id", "side"}),
		ordersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "orders_filled_total",
			Help:      "Total number of orders filled.",
		}, []string{"runner_id", "side"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "orders_rejected_total",
			Help:      "Total number of orders rejected by the exchange or risk check.",
		}, []string{"runner_id", "reason"}),
		ordersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "orders_cancelled_total",
			Help:      "Total number of orders cancelled by a runner.",
		}, []string{"runner_id"}),
		signalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_generated_total",
			Help:      "Total number of entry/exit signals generated.",
		}, []string{"runner_id", "kind"}),
		tickLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "tick_latency_seconds",
			Help:      "Duration of a single runner tick cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"runner_id"}),
		combinationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "optimize_combinations_completed_total",
			Help:      "Total number of parameter combinations evaluated by the optimizer.",
		}),
		combinationsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "optimize_combinations_total",
			Help:      "Total number of parameter combinations in the current optimizer run.",
		}),
		runnerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "runner_state",
			Help:      "Current lifecycle state of a runner, one gauge per known state (1 = active).",
		}, []string{"runner_id", "state"}),
		checkpointsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "recovery_checkpoints_total",
			Help:      "Total number of system-state checkpoints taken.",
		}),
		syncDiscrepancy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "recovery_sync_discrepancies_total",
			Help:      "Total discrepancies found during recover_with_sync, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.ordersSubmitted,
		m.ordersFilled,
		m.ordersRejected,
		m.ordersCancelled,
		m.signalsGenerated,
		m.tickLatency,
		m.combinationsCompleted,
		m.combinationsTotal,
		m.runnerState,
		m.checkpointsTaken,
		m.syncDiscrepancy,
	)

	return m
}

// Handler returns the promhttp handler for this registry's scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderSubmitted(runnerID, side string) {
	if m == nil {
		return
	}
	m.ordersSubmitted.WithLabelValues(runnerID, side).Inc()
}

func (m *Metrics) OrderFilled(runnerID, side string) {
	if m == nil {
		return
	}
	m.ordersFilled.WithLabelValues(runnerID, side).Inc()
}

func (m *Metrics) OrderRejected(runnerID, reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(runnerID, reason).Inc()
}

func (m *Metrics) OrderCancelled(runnerID string) {
	if m == nil {
		return
	}
	m.ordersCancelled.WithLabelValues(runnerID).Inc()
}

func (m *Metrics) SignalGenerated(runnerID, kind string) {
	if m == nil {
		return
	}
	m.signalsGenerated.WithLabelValues(runnerID, kind).Inc()
}

func (m *Metrics) ObserveTickLatency(runnerID string, seconds float64) {
	if m == nil {
		return
	}
	m.tickLatency.WithLabelValues(runnerID).Observe(seconds)
}

func (m *Metrics) CombinationCompleted() {
	if m == nil {
		return
	}
	m.combinationsCompleted.Inc()
}

func (m *Metrics) SetCombinationsTotal(n int) {
	if m == nil {
		return
	}
	m.combinationsTotal.Set(float64(n))
}

func (m *Metrics) CheckpointTaken() {
	if m == nil {
		return
	}
	m.checkpointsTaken.Inc()
}

// SyncDiscrepancy records one occurrence of the named discrepancy kind
// found during recover_with_sync (one of "orphan_order", "stale_order",
// "position_mismatch", "missing_position").
func (m *Metrics) SyncDiscrepancy(kind string) {
	if m == nil {
		return
	}
	m.syncDiscrepancy.WithLabelValues(kind).Inc()
}

// SetRunnerState zeroes every other known state label for this runner and
// sets the active one to 1, so a scrape always shows exactly one active
// state per runner.
func (m *Metrics) SetRunnerState(runnerID, state string, knownStates []string) {
	if m == nil {
		return
	}
	for _, s := range knownStates {
		if s == state {
			m.runnerState.WithLabelValues(runnerID, s).Set(1)
		} else {
			m.runnerState.WithLabelValues(runnerID, s).Set(0)
		}
	}
}
