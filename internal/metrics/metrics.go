// Package metrics exposes Prometheus collectors for the strategy runtime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "argo_strategy"

// Metrics holds every collector. All methods are safe on a nil receiver so
// components can run without metrics.
type Metrics struct {
	OrdersTotal      *prometheus.CounterVec
	OrderRejections  *prometheus.CounterVec
	FillsTotal       *prometheus.CounterVec
	PositionsClosed  *prometheus.CounterVec
	NodeInitDuration *prometheus.HistogramVec
	NodeStopDuration *prometheus.HistogramVec
	NodeFailures     *prometheus.CounterVec
	StepDuration     prometheus.Histogram
	PlayIndex        *prometheus.GaugeVec
	Equity           *prometheus.GaugeVec
}

// New registers the collectors on reg. Use a fresh prometheus.NewRegistry()
// per process or test; registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vts",
			Name:      "orders_total",
			Help:      "Orders accepted by the virtual trading system by type and side",
		}, []string{"order_type", "side"}),
		OrderRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vts",
			Name:      "order_rejections_total",
			Help:      "Orders rejected by error code",
		}, []string{"code"}),
		FillsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vts",
			Name:      "fills_total",
			Help:      "Filled orders by type",
		}, []string{"order_type"}),
		PositionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vts",
			Name:      "positions_closed_total",
			Help:      "Closed positions by side",
		}, []string{"side"}),
		NodeInitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "node_init_duration_seconds",
			Help:      "Time spent initializing a node",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		NodeStopDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "node_stop_duration_seconds",
			Help:      "Time spent stopping a node",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		NodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "node_failures_total",
			Help:      "Node lifecycle failures by phase and error code",
		}, []string{"phase", "code"}),
		StepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "step_duration_seconds",
			Help:      "Time from publishing a play index until every leaf node completed it",
			Buckets:   prometheus.DefBuckets,
		}),
		PlayIndex: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "play_index",
			Help:      "Current play index by strategy",
		}, []string{"strategy"}),
		Equity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vts",
			Name:      "equity",
			Help:      "Account equity by strategy",
		}, []string{"strategy"}),
	}
}

func (m *Metrics) OrderAccepted(orderType, side string) {
	if m == nil {
		return
	}

	m.OrdersTotal.WithLabelValues(orderType, side).Inc()
}

func (m *Metrics) OrderRejected(code string) {
	if m == nil {
		return
	}

	m.OrderRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) OrderFilled(orderType string) {
	if m == nil {
		return
	}

	m.FillsTotal.WithLabelValues(orderType).Inc()
}

func (m *Metrics) PositionClosed(side string) {
	if m == nil {
		return
	}

	m.PositionsClosed.WithLabelValues(side).Inc()
}

func (m *Metrics) NodeInitialized(node string, d time.Duration) {
	if m == nil {
		return
	}

	m.NodeInitDuration.WithLabelValues(node).Observe(d.Seconds())
}

func (m *Metrics) NodeStopped(node string, d time.Duration) {
	if m == nil {
		return
	}

	m.NodeStopDuration.WithLabelValues(node).Observe(d.Seconds())
}

// NodeFailed counts a lifecycle failure; phase is "init" or "stop".
func (m *Metrics) NodeFailed(phase, code string) {
	if m == nil {
		return
	}

	m.NodeFailures.WithLabelValues(phase, code).Inc()
}

func (m *Metrics) StepCompleted(d time.Duration) {
	if m == nil {
		return
	}

	m.StepDuration.Observe(d.Seconds())
}

func (m *Metrics) SetPlayIndex(strategy string, index int64) {
	if m == nil {
		return
	}

	m.PlayIndex.WithLabelValues(strategy).Set(float64(index))
}

func (m *Metrics) SetEquity(strategy string, equity float64) {
	if m == nil {
		return
	}

	m.Equity.WithLabelValues(strategy).Set(equity)
}
