package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records payment attempts per gateway.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	outcome  *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_payment_duration_seconds",
		Help:    "Duration of gateway payment calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})
	outcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payments_total",
		Help: "Checkout payment attempts, by gateway and result.",
	}, []string{"gateway", "result"})
	reg.MustRegister(duration, outcome)
	return &CheckoutMetrics{duration: duration, outcome: outcome}
}

// ObservePayment records one gateway call.
func (m *CheckoutMetrics) ObservePayment(gateway string, elapsed time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	gateway = normalizeLabel(gateway)
	m.duration.WithLabelValues(gateway).Observe(elapsed.Seconds())
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.outcome.WithLabelValues(gateway, result).Inc()
}
