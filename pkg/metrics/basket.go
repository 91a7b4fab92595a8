package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Persistence outcomes.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Restore outcomes.
const (
	RestoreFound     = "found"
	RestoreEmpty     = "empty"
	RestoreMalformed = "malformed"
	RestoreError     = "error"
)

// BasketMetrics counts basket mutations and snapshot storage traffic.
type BasketMetrics struct {
	mutations *prometheus.CounterVec
	persist   *prometheus.CounterVec
	restore   *prometheus.CounterVec
}

// NewBasketMetrics registers the basket metrics on the provided registerer.
func NewBasketMetrics(reg prometheus.Registerer) *BasketMetrics {
	if reg == nil {
		return &BasketMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_mutations_total",
		Help: "Basket mutations applied, by operation.",
	}, []string{"op"})
	persist := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_persist_total",
		Help: "Basket snapshot writes, by result.",
	}, []string{"result"})
	restore := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_restore_total",
		Help: "Basket snapshot loads, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(mutations, persist, restore)
	return &BasketMetrics{
		mutations: mutations,
		persist:   persist,
		restore:   restore,
	}
}

// IncMutation counts an applied mutation.
func (m *BasketMetrics) IncMutation(op string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncPersist counts a snapshot write by result.
func (m *BasketMetrics) IncPersist(result string) {
	if m == nil || m.persist == nil {
		return
	}
	m.persist.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncRestore counts a snapshot load by outcome.
func (m *BasketMetrics) IncRestore(outcome string) {
	if m == nil || m.restore == nil {
		return
	}
	m.restore.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
