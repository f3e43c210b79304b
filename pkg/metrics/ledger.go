package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records funding ledger activity.
type LedgerMetrics struct {
	transactions  *prometheus.CounterVec
	credits       *prometheus.CounterVec
	amount        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funding_transactions_total",
			Help: "Ledger rows appended, by transaction type.",
		}, []string{"type"}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funding_credits_total",
			Help: "Carbon credits issued or sold.",
		}, []string{"type"}),
		amount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funding_amount_total",
			Help: "Monetary amount recorded, by transaction type.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funding_operation_failures_total",
			Help: "Failed ledger operations by operation and error kind.",
		}, []string{"operation", "kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funding_notification_failures_total",
			Help: "Post-commit notification failures by channel.",
		}, []string{"channel"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "funding_operation_duration_seconds",
			Help:    "Ledger operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.transactions, m.credits, m.amount, m.failures, m.notifications, m.duration)
	return m
}

func (m *LedgerMetrics) ObserveTransaction(txType string, credits int64, amount float64) {
	if m == nil || m.transactions == nil {
		return
	}
	label := normalizeLabel(txType)
	m.transactions.WithLabelValues(label).Inc()
	if credits > 0 {
		m.credits.WithLabelValues(label).Add(float64(credits))
	}
	if amount > 0 {
		m.amount.WithLabelValues(label).Add(amount)
	}
}

func (m *LedgerMetrics) IncFailure(operation, kind string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(operation), normalizeLabel(kind)).Inc()
}

func (m *LedgerMetrics) IncNotificationFailure(channel string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *LedgerMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
