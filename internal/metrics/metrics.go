// Package metrics exposes detection counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "monkey_alert"

// Metrics holds application counters and gauges.
type Metrics struct {
	// Frames
	FramesClassified atomic.Uint64
	FramesReused     atomic.Uint64
	FrameErrors      atomic.Uint64

	// Detection
	Transitions     atomic.Uint64
	MonkeyDetected  atomic.Uint64
	LastProbability atomic.Uint64 // per-mille

	// Session
	SessionStarts       atomic.Uint64
	AcquisitionFailures atomic.Uint64
	SessionActive       atomic.Uint64 // 0 or 1

	// Alert
	AlertStarts  atomic.Uint64
	AlertPlaying atomic.Uint64 // 0 or 1

	BreakerState  atomic.Uint64 // resilience.State
	WSConnections atomic.Int64

	registry *prometheus.Registry
}

// New creates Metrics with a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"frames_classified_total", "Frames sent to the classifier", &m.FramesClassified},
		{"frames_reused_total", "Frames that reused the previous prediction", &m.FramesReused},
		{"frame_errors_total", "Frames skipped because of an error", &m.FrameErrors},
		{"transitions_total", "Verdict transitions", &m.Transitions},
		{"monkey_detections_total", "Transitions to monkey", &m.MonkeyDetected},
		{"session_starts_total", "Sessions started", &m.SessionStarts},
		{"acquisition_failures_total", "Session starts that failed to acquire the model or camera", &m.AcquisitionFailures},
		{"alert_starts_total", "Times the alert tone started playing", &m.AlertStarts},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: namespace, Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"session_active", "Session running (0=idle, 1=active)", func() float64 { return float64(m.SessionActive.Load()) }},
		{"alert_playing", "Alert tone audible (0=silent, 1=playing)", func() float64 { return float64(m.AlertPlaying.Load()) }},
		{"monkey_probability", "Monkey probability of the last classified frame", func() float64 { return float64(m.LastProbability.Load()) / 1000 }},
		{"classifier_breaker_state", "Classifier circuit breaker (0=closed, 1=open, 2=half-open)", func() float64 { return float64(m.BreakerState.Load()) }},
		{"ws_connections", "Open WebSocket connections", func() float64 { return float64(m.WSConnections.Load()) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// SetProbability records the latest monkey probability.
func (m *Metrics) SetProbability(p float64) {
	if p < 0 {
		p = 0
	}
	m.LastProbability.Store(uint64(p*1000 + 0.5))
}

// SetBool stores 1 or 0.
func SetBool(v *atomic.Uint64, b bool) {
	if b {
		v.Store(1)
		return
	}
	v.Store(0)
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
