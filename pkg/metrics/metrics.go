// Package metrics exposes intake session metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Sessions
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Messages
	MessagesReceived *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec

	// Wizard
	StepTransitions    *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	PageEntries        *prometheus.CounterVec
	Autosaves          *prometheus.CounterVec
	Restores           *prometheus.CounterVec
	Submissions        *prometheus.CounterVec

	// Errors
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics creates and registers the metrics on a fresh registry that
// also carries the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active",
			Help: "Number of open live sessions.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_total",
			Help: "Live sessions started.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_received_total",
			Help: "Protocol messages received by type.",
		}, []string{"type"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "event_duration_seconds",
			Help:    "Time spent handling a client event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"event"}),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "step_transitions_total",
			Help: "Step changes by direction.",
		}, []string{"direction"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "validation_failures_total",
			Help: "Blocked navigations by step and notice kind.",
		}, []string{"step", "kind"}),
		PageEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "page_entries_total",
			Help: "Repeatable page entries added or removed.",
		}, []string{"op"}),
		Autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "autosaves_total",
			Help: "Durable saves by trigger and outcome.",
		}, []string{"trigger", "result"}),
		Restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "restores_total",
			Help: "Saved-progress prompts by answer.",
		}, []string{"result"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "submissions_total",
			Help: "Form submissions by outcome.",
		}, []string{"result"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Errors by type.",
		}, []string{"type"}),
		PanicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "panics_total",
			Help: "Panics recovered in the session loop.",
		}),
	}

	reg.MustRegister(
		m.SessionsActive, m.SessionsTotal,
		m.MessagesReceived, m.EventDuration,
		m.StepTransitions, m.ValidationFailures, m.PageEntries,
		m.Autosaves, m.Restores, m.Submissions,
		m.ErrorsTotal, m.PanicsTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionOpened records a new live session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionClosed records the end of a live session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// MessageReceived counts an incoming protocol message.
func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

// ObserveEvent records how long an event took to handle.
func (m *Metrics) ObserveEvent(event string, d time.Duration) {
	if m == nil {
		return
	}
	m.EventDuration.WithLabelValues(event).Observe(d.Seconds())
}

// StepChanged counts a step transition ("forward", "back", "jump").
func (m *Metrics) StepChanged(direction string) {
	if m == nil {
		return
	}
	m.StepTransitions.WithLabelValues(direction).Inc()
}

// ValidationFailed counts a blocked navigation.
func (m *Metrics) ValidationFailed(step, kind string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(step, kind).Inc()
}

// PageEntry counts an added or removed page entry.
func (m *Metrics) PageEntry(op string) {
	if m == nil {
		return
	}
	m.PageEntries.WithLabelValues(op).Inc()
}

// Autosaved counts a durable save.
func (m *Metrics) Autosaved(trigger string, err error) {
	if m == nil {
		return
	}
	m.Autosaves.WithLabelValues(trigger, result(err)).Inc()
}

// Restored counts the answer to a saved-progress prompt ("restored",
// "empty", "declined").
func (m *Metrics) Restored(outcome string) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(outcome).Inc()
}

// Submitted counts a submission attempt.
func (m *Metrics) Submitted(err error) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result(err)).Inc()
}

// RecordError counts an error by type.
func (m *Metrics) RecordError(errType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errType).Inc()
}

// RecordPanic counts a recovered panic.
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
