package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the agent.
type Metrics struct {
	// Interception metrics
	RewritesTotal     *prometheus.CounterVec
	InterceptedTotal  *prometheus.CounterVec
	TapFailuresTotal  prometheus.Counter
	CredentialsSaved  prometheus.Counter
	ReportsSentTotal  prometheus.Counter

	// Channel metrics
	FramesTotal     *prometheus.CounterVec
	ReconnectsTotal prometheus.Counter
	HeartbeatsTotal prometheus.Counter
	ChannelOnline   prometheus.Gauge

	// Autologin metrics
	AutologinOutcomes *prometheus.CounterVec
}

// New creates a metrics collector registered against reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RewritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_rewrites_total",
				Help: "Total URL rewrites, labeled by matched rule",
			},
			[]string{"rule"},
		),
		InterceptedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_intercepted_requests_total",
				Help: "Total intercepted requests, labeled by call surface",
			},
			[]string{"surface"},
		),
		TapFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_tap_failures_total",
				Help: "Response tap failures that were absorbed",
			},
		),
		CredentialsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_credentials_saved_total",
				Help: "Credential captures persisted to the vault",
			},
		),
		ReportsSentTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_reports_sent_total",
				Help: "Telemetry reports successfully dispatched",
			},
		),
		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_channel_frames_total",
				Help: "Operator channel frames, labeled by direction and type",
			},
			[]string{"direction", "type"},
		),
		ReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_channel_reconnects_total",
				Help: "Reconnect attempts scheduled after channel close",
			},
		),
		HeartbeatsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_channel_heartbeats_total",
				Help: "Heartbeat frames sent while online",
			},
		),
		ChannelOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_channel_online",
				Help: "1 while the operator channel is online, else 0",
			},
		),
		AutologinOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_autologin_outcomes_total",
				Help: "Autologin runs, labeled by terminal outcome",
			},
			[]string{"outcome"},
		),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordRewrite records a rewrite by rule name.
func (m *Metrics) RecordRewrite(rule string) {
	if m == nil {
		return
	}
	m.RewritesTotal.WithLabelValues(rule).Inc()
}

// RecordIntercepted records an intercepted request by surface.
func (m *Metrics) RecordIntercepted(surface string) {
	if m == nil {
		return
	}
	m.InterceptedTotal.WithLabelValues(surface).Inc()
}

// RecordTapFailure records an absorbed tap failure.
func (m *Metrics) RecordTapFailure() {
	if m == nil {
		return
	}
	m.TapFailuresTotal.Inc()
}

// RecordCredentialSaved records a persisted credential capture.
func (m *Metrics) RecordCredentialSaved() {
	if m == nil {
		return
	}
	m.CredentialsSaved.Inc()
}

// RecordReportSent records a dispatched telemetry report.
func (m *Metrics) RecordReportSent() {
	if m == nil {
		return
	}
	m.ReportsSentTotal.Inc()
}

// RecordFrame records a channel frame by direction ("in"/"out") and type.
func (m *Metrics) RecordFrame(direction, frameType string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(direction, frameType).Inc()
}

// RecordReconnect records a scheduled reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// RecordHeartbeat records a heartbeat frame.
func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.HeartbeatsTotal.Inc()
}

// SetChannelOnline flips the online gauge.
func (m *Metrics) SetChannelOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.ChannelOnline.Set(1)
		return
	}
	m.ChannelOnline.Set(0)
}

// RecordAutologinOutcome records a terminal autologin outcome.
func (m *Metrics) RecordAutologinOutcome(outcome string) {
	if m == nil {
		return
	}
	m.AutologinOutcomes.WithLabelValues(outcome).Inc()
}
