// Package metrics exposes Prometheus collectors for the support services.
//
// Every method is safe on a nil *Collector so components can take an
// optional collector without guarding each call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "ordercopilot"

// Collector holds the service metrics. It implements longrun.Observer.
type Collector struct {
	opsStarted  prometheus.Counter
	opsResumed  *prometheus.CounterVec
	opsExpired  prometheus.Counter
	opsInflight prometheus.Gauge

	chatRequests *prometheus.CounterVec
	chatDuration prometheus.Histogram

	llmRequests *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec

	toolCalls     *prometheus.CounterVec
	notifications prometheus.Counter
}

// NewCollector registers the collectors on reg. Pass
// prometheus.NewRegistry() in tests to keep registrations isolated.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		opsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_started_total",
			Help:      "Long-running operations started.",
		}),
		opsResumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_resumed_total",
			Help:      "Resume calls by outcome.",
		}, []string{"outcome"}),
		opsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_expired_total",
			Help:      "Operations dropped after their TTL without being resumed.",
		}),
		opsInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "operations_inflight",
			Help:      "Operations started but not yet consumed or expired.",
		}),
		chatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by HTTP status.",
		}, []string{"status"}),
		chatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Chat request latency.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "llm_requests_total",
			Help:      "Model calls by model and status.",
		}, []string{"model", "status"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "support_notifications_total",
			Help:      "Alerts raised to customer support.",
		}),
	}
}

// Started records a new operation.
func (c *Collector) Started() {
	if c == nil {
		return
	}
	c.opsStarted.Inc()
	c.opsInflight.Inc()
}

// Resumed records a resume call. A "completed" outcome leaves the inflight set.
func (c *Collector) Resumed(outcome string) {
	if c == nil {
		return
	}
	c.opsResumed.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		c.opsInflight.Dec()
	}
}

// Expired records n operations dropped by the janitor.
func (c *Collector) Expired(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.opsExpired.Add(float64(n))
	c.opsInflight.Sub(float64(n))
}

// ChatRequest records one /chat call.
func (c *Collector) ChatRequest(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.chatRequests.WithLabelValues(status).Inc()
	c.chatDuration.Observe(d.Seconds())
}

// LLMRequest records one model call.
func (c *Collector) LLMRequest(model, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.llmRequests.WithLabelValues(model, status).Inc()
	c.llmDuration.WithLabelValues(model).Observe(d.Seconds())
}

// ToolCall records one tool invocation.
func (c *Collector) ToolCall(tool, status string) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
}

// Notified records an alert sent to customer support.
func (c *Collector) Notified() {
	if c == nil {
		return
	}
	c.notifications.Inc()
}
