package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mhpenta/mathchat"
)

// Metrics records conversation activity. It implements mathchat.Observer.
type Metrics struct {
	registry *prometheus.Registry

	turns    *prometheus.CounterVec
	rejected *prometheus.CounterVec
	pending  prometheus.Gauge
	duration prometheus.Histogram
}

var _ mathchat.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mathchat_turns_total",
				Help: "Completed turns by outcome.",
			},
			[]string{"outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mathchat_rejected_dispatch_total",
				Help: "Submissions rejected before reaching the model.",
			},
			[]string{"reason"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mathchat_generation_pending",
			Help: "1 while a generation is in flight.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mathchat_generation_duration_seconds",
			Help:    "Time spent waiting for the model.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}

	m.registry.MustRegister(
		m.turns,
		m.rejected,
		m.pending,
		m.duration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) DispatchRejected(reason error) {
	label := "other"
	switch {
	case errors.Is(reason, mathchat.ErrEmptyTurn):
		label = "empty"
	case errors.Is(reason, mathchat.ErrRequestPending):
		label = "pending"
	}
	m.rejected.WithLabelValues(label).Inc()
}

func (m *Metrics) GenerationStarted() {
	m.pending.Set(1)
}

func (m *Metrics) GenerationFinished(reply mathchat.Message, elapsed time.Duration) {
	m.pending.Set(0)
	m.duration.Observe(elapsed.Seconds())

	outcome := "solved"
	if reply.IsError() {
		outcome = "failed"
	}
	m.turns.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
