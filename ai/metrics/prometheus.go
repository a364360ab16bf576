// Package metrics provides Prometheus metrics export for summarize runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/journalrecap/ai/core/llm"
)

// PrometheusExporter exports recap metrics in Prometheus format.
// It implements recap.Observer.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Run metrics
	runs       *prometheus.CounterVec
	runLatency *prometheus.HistogramVec

	// LLM metrics
	llmTokensUsed   *prometheus.CounterVec
	llmTokensCached prometheus.Counter
	llmLatency      prometheus.Histogram
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "journalrecap",
			Subsystem: "recap",
			Name:      "runs_total",
			Help:      "Total number of summarize runs by outcome",
		},
		[]string{"outcome"},
	)

	e.runLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "journalrecap",
			Subsystem: "recap",
			Name:      "run_duration_seconds",
			Help:      "Summarize run duration in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"outcome"},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "journalrecap",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"token_type"},
	)

	e.llmTokensCached = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "journalrecap",
			Subsystem: "llm",
			Name:      "tokens_cached_total",
			Help:      "Total LLM prompt tokens served from cache",
		},
	)

	e.llmLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "journalrecap",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Chat completion latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	registry.MustRegister(
		e.runs,
		e.runLatency,
		e.llmTokensUsed,
		e.llmTokensCached,
		e.llmLatency,
	)

	return e
}

// ObserveRun records one finished run. stats is nil when the model was never called.
func (e *PrometheusExporter) ObserveRun(outcome string, duration time.Duration, stats *llm.LLMCallStats) {
	e.runs.WithLabelValues(outcome).Inc()
	e.runLatency.WithLabelValues(outcome).Observe(duration.Seconds())

	if stats == nil {
		return
	}
	e.llmTokensUsed.WithLabelValues("prompt").Add(float64(stats.PromptTokens))
	e.llmTokensUsed.WithLabelValues("completion").Add(float64(stats.CompletionTokens))
	e.llmTokensCached.Add(float64(stats.CacheReadTokens))
	e.llmLatency.Observe(float64(stats.TotalDurationMs) / 1000)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}
