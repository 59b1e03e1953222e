// Package observability collects Prometheus metrics for the dispatch engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beacon/internal/llm"
)

// Metrics holds the engine's instrument set on a private registry, so tests
// can create collectors without global-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	DispatchTotal    *prometheus.CounterVec
	SkipsTotal       *prometheus.CounterVec
	ProviderAttempts *prometheus.CounterVec
	GenerationCost   *prometheus.CounterVec
	TokensTotal      *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	TicksTotal       *prometheus.CounterVec
	OutboxProcessed  *prometheus.CounterVec
}

// NewMetrics creates and registers the instrument set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_dispatch_total",
			Help: "Delivery attempts by channel and outcome.",
		}, []string{"channel", "status"}),
		SkipsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_skips_total",
			Help: "Gated or mistimed dispatches by skip reason.",
		}, []string{"reason"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_provider_attempts_total",
			Help: "AI provider calls by category, provider and outcome.",
		}, []string{"category", "provider", "outcome"}),
		GenerationCost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_generation_cost_usd_total",
			Help: "Approximate generation spend in USD.",
		}, []string{"category", "provider"}),
		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_generation_tokens_total",
			Help: "Tokens consumed by direction (input/output).",
		}, []string{"provider", "direction"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_tick_duration_seconds",
			Help:    "Wall-clock duration of one scheduler tick.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_ticks_total",
			Help: "Scheduler ticks by trigger source.",
		}, []string{"source"}),
		OutboxProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_outbox_tasks_total",
			Help: "Outbox tasks processed by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAttempt implements llm.AttemptSink: every provider call, failed or
// not, lands in the attempt and cost counters.
func (m *Metrics) RecordAttempt(category llm.TaskCategory, attempt llm.Attempt) {
	outcome := "failed"
	if attempt.Succeeded {
		outcome = "succeeded"
	}
	m.ProviderAttempts.WithLabelValues(string(category), attempt.Provider, outcome).Inc()
	if attempt.Succeeded {
		m.GenerationCost.WithLabelValues(string(category), attempt.Provider).Add(attempt.CostUSD)
		m.TokensTotal.WithLabelValues(attempt.Provider, "input").Add(float64(attempt.Usage.PromptTokens))
		m.TokensTotal.WithLabelValues(attempt.Provider, "output").Add(float64(attempt.Usage.CompletionTokens))
	}
}
