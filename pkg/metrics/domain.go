package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook ingestion outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// DomainMetrics counts money-moving and fulfillment outcomes. A nil receiver is a no-op
// so services can run without a registry in tests.
type DomainMetrics struct {
	webhooks    *prometheus.CounterVec
	payouts     *prometheus.CounterVec
	payoutCents *prometheus.CounterVec
	fulfillment *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewDomainMetrics registers the domain counters on reg.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Payment provider webhook events by outcome.",
		}, []string{"provider", "outcome"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payouts",
			Name:      "requests_total",
			Help:      "Payout requests by method and final status.",
		}, []string{"method", "status"}),
		payoutCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payouts",
			Name:      "completed_cents_total",
			Help:      "Minor units paid out to sellers.",
		}, []string{"method"}),
		fulfillment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fulfillment",
			Name:      "supplier_attempts_total",
			Help:      "Supplier order submission attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Applied order status transitions.",
		}, []string{"to"}),
	}
	reg.MustRegister(m.webhooks, m.payouts, m.payoutCents, m.fulfillment, m.transitions)
	return m
}

func (m *DomainMetrics) WebhookEvent(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) Payout(method, status string, amountCents int64) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
	if status == "completed" && amountCents > 0 {
		m.payoutCents.WithLabelValues(normalizeLabel(method)).Add(float64(amountCents))
	}
}

func (m *DomainMetrics) SupplierAttempt(outcome string) {
	if m == nil || m.fulfillment == nil {
		return
	}
	m.fulfillment.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) Transition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}
