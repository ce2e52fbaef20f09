package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDomainMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)

	m.WebhookEvent("stripe", OutcomeCreated)
	m.WebhookEvent("stripe", OutcomeDuplicate)
	m.WebhookEvent("stripe", OutcomeDuplicate)
	m.Payout("paypal", "completed", 2000)
	m.Payout("paypal", "failed", 500)
	m.SupplierAttempt("transient")
	m.Transition("shipped")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := counterSum(mfs, "dropone_webhooks_events_total", "outcome", OutcomeDuplicate); err != nil || got != 2 {
		t.Fatalf("expected 2 duplicates, got %f (%v)", got, err)
	}
	if got, err := counterSum(mfs, "dropone_payouts_completed_cents_total", "method", "paypal"); err != nil || got != 2000 {
		t.Fatalf("expected 2000 paid cents, got %f (%v)", got, err)
	}
	if got, err := counterSum(mfs, "dropone_fulfillment_supplier_attempts_total", "outcome", "transient"); err != nil || got != 1 {
		t.Fatalf("expected one transient attempt, got %f (%v)", got, err)
	}
	if got, err := counterSum(mfs, "dropone_orders_transitions_total", "to", "shipped"); err != nil || got != 1 {
		t.Fatalf("expected one shipped transition, got %f (%v)", got, err)
	}
}

func TestDomainMetricsNilSafe(t *testing.T) {
	var m *DomainMetrics
	m.WebhookEvent("paypal", OutcomeFailed)
	m.Payout("stripe", "completed", 100)
	m.SupplierAttempt("success")
	m.Transition("error")

	NewDomainMetrics(nil).Payout("stripe", "completed", 100)
}

func TestHTTPMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("POST", "/api/webhooks/stripe", 200, 15*time.Millisecond)
	m.Observe("POST", "/api/webhooks/stripe", 400, time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := counterSum(mfs, "dropone_http_requests_total", "status", "400"); err != nil || got != 1 {
		t.Fatalf("expected one 400, got %f (%v)", got, err)
	}
	if got, err := counterSum(mfs, "dropone_http_requests_total", "route", "unmatched"); err != nil || got != 1 {
		t.Fatalf("expected one unmatched request, got %f (%v)", got, err)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/health/live", 200, time.Millisecond)
}

func TestOutboxMetricsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Observe("order_paid", OutboxPublished)
	m.Observe("order_paid", OutboxRetried)
	m.Observe("payout_failed", OutboxDead)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := counterSum(mfs, "dropone_outbox_events_total", "outcome", OutboxDead); err != nil || got != 1 {
		t.Fatalf("expected one dead row, got %f (%v)", got, err)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.Observe("order_paid", OutboxPublished)
}

// counterSum adds up every series of name whose label matches value.
func counterSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var total float64
		var matched bool
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					total += metric.GetCounter().GetValue()
					matched = true
				}
			}
		}
		if !matched {
			return 0, fmt.Errorf("%s has no series with %s=%s", name, label, value)
		}
		return total, nil
	}
	return 0, fmt.Errorf("metric %q not found", name)
}
