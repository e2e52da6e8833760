package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the controller.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Action pipeline metrics
	ActionsTotal  *prometheus.CounterVec
	VetoesTotal   *prometheus.CounterVec
	DeviceLatency *prometheus.HistogramVec

	// Decision metrics
	DecisionLatency prometheus.Histogram
	DecodeFailures  prometheus.Counter

	// Autonomy metrics
	AutonomyState prometheus.Gauge
	LoopTicks     prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers the metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_actions_total",
				Help: "Total attempted actions by kind, source, and outcome",
			},
			[]string{"kind", "source", "outcome"},
		),
		VetoesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_vetoes_total",
				Help: "Total safety vetoes by reason",
			},
			[]string{"reason"},
		),
		DeviceLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_device_duration_seconds",
				Help:    "Device primitive duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),

		DecisionLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deskpilot_decision_duration_seconds",
				Help:    "Vision boundary round-trip duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		DecodeFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "deskpilot_decode_failures_total",
				Help: "Total unparsable vision responses",
			},
		),

		AutonomyState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskpilot_autonomy_state",
				Help: "Autonomy loop state (0=idle 1=running 2=stopping 3=stopped)",
			},
		),
		LoopTicks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "deskpilot_loop_ticks_total",
				Help: "Total autonomy loop iterations",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskpilot_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskpilot_uptime_seconds",
				Help: "Controller uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAction records one attempted action and its resolution.
func (m *Metrics) RecordAction(kind, source, outcome string, duration time.Duration) {
	m.ActionsTotal.WithLabelValues(kind, source, outcome).Inc()
	m.DeviceLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordVeto records a safety veto.
func (m *Metrics) RecordVeto(reason string) {
	m.VetoesTotal.WithLabelValues(reason).Inc()
}

// RecordDecision records a vision boundary round trip.
func (m *Metrics) RecordDecision(duration time.Duration) {
	m.DecisionLatency.Observe(duration.Seconds())
}
