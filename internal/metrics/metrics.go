// Package metrics provides Prometheus metrics for healthbot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal       *prometheus.CounterVec
	TurnsInFlight    prometheus.Gauge
	IntentsTotal     *prometheus.CounterVec
	OutboundTotal    *prometheus.CounterVec
	ExternalDuration *prometheus.HistogramVec
	RemindersSent    prometheus.Counter
	RemindersPruned  prometheus.Counter
}

// New creates the metrics on a private registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthbot_turns_total",
				Help: "Turns handled, by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		TurnsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "healthbot_turns_in_flight",
				Help: "Inbound messages currently being processed",
			},
		),
		IntentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthbot_intents_total",
				Help: "Classified intents",
			},
			[]string{"intent"},
		),
		OutboundTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthbot_outbound_total",
				Help: "Outbound messages by channel, format and status",
			},
			[]string{"channel", "type", "status"},
		),
		ExternalDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthbot_external_call_duration_seconds",
				Help:    "Latency of calls to external services",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
		RemindersSent: f.NewCounter(
			prometheus.CounterOpts{
				Name: "healthbot_reminders_sent_total",
				Help: "Due reminders pushed to their senders",
			},
		),
		RemindersPruned: f.NewCounter(
			prometheus.CounterOpts{
				Name: "healthbot_reminders_pruned_total",
				Help: "Reminders removed by the retention policy",
			},
		),
	}
}

func (m *Metrics) ObserveTurn(stage, outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(intent).Inc()
}

func (m *Metrics) ObserveOutbound(channel, format string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OutboundTotal.WithLabelValues(channel, format, status).Inc()
}

// Since records the time elapsed since start against service.
func (m *Metrics) Since(service string, start time.Time) {
	if m == nil {
		return
	}
	m.ExternalDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

func (m *Metrics) TurnStarted() {
	if m != nil {
		m.TurnsInFlight.Inc()
	}
}

func (m *Metrics) TurnFinished() {
	if m != nil {
		m.TurnsInFlight.Dec()
	}
}

func (m *Metrics) ReminderSent() {
	if m != nil {
		m.RemindersSent.Inc()
	}
}

func (m *Metrics) ReminderPruned(n int) {
	if m != nil && n > 0 {
		m.RemindersPruned.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
