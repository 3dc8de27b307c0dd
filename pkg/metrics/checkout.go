package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records wizard transitions and estimator behavior.
type CheckoutMetrics struct {
	transitions   *prometheus.CounterVec
	captures      *prometheus.CounterVec
	quoteDuration prometheus.Histogram
	quoteFallback prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_step_transitions",
		Help: "Checkout wizard step transitions.",
	}, []string{"from", "to"})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_captures",
		Help: "Payment capture outcomes.",
	}, []string{"outcome"})
	quoteDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shipping_quote_duration_seconds",
		Help:    "Duration of shipping quote evaluations in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	quoteFallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shipping_quote_fallbacks",
		Help: "Times the estimator degraded to the synthesized fallback quote.",
	})
	reg.MustRegister(transitions, captures, quoteDuration, quoteFallback)
	return &CheckoutMetrics{
		transitions:   transitions,
		captures:      captures,
		quoteDuration: quoteDuration,
		quoteFallback: quoteFallback,
	}
}

// ObserveTransition records one wizard step transition.
func (c *CheckoutMetrics) ObserveTransition(from, to string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncCapture records a capture outcome ("success", "rejected", "error").
func (c *CheckoutMetrics) IncCapture(outcome string) {
	if c == nil || c.captures == nil {
		return
	}
	c.captures.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveQuoteDuration records how long a quote evaluation took.
func (c *CheckoutMetrics) ObserveQuoteDuration(duration time.Duration) {
	if c == nil || c.quoteDuration == nil {
		return
	}
	c.quoteDuration.Observe(duration.Seconds())
}

// IncQuoteFallback counts a degraded estimator response.
func (c *CheckoutMetrics) IncQuoteFallback() {
	if c == nil || c.quoteFallback == nil {
		return
	}
	c.quoteFallback.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
