// Package metrics holds the Prometheus counters of the purchase workflow.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	CheckoutSessions    *prometheus.CounterVec
	PurchasesRecorded   prometheus.Counter
	DuplicateDeliveries prometheus.Counter
	SignatureFailures   prometheus.Counter
	Settlements         *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec
	OutboxPublished     *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session creation attempts by result.",
		}, []string{"result"}),
		PurchasesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "purchases_recorded_total",
			Help:      "Purchases written to the ledger.",
		}),
		DuplicateDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "purchase_duplicate_deliveries_total",
			Help:      "Completed-checkout deliveries absorbed by the ledger uniqueness constraint.",
		}),
		SignatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "webhook_signature_failures_total",
			Help:      "Webhook deliveries rejected before processing.",
		}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "settlements_total",
			Help:      "Seller settlement attempts by result.",
		}, []string{"result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "webhook_events_total",
			Help:      "Verified webhook events by type.",
		}, []string{"type"}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Name:      "outbox_published_total",
			Help:      "Outbox events relayed to Kafka by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.CheckoutSessions, m.PurchasesRecorded, m.DuplicateDeliveries,
			m.SignatureFailures, m.Settlements, m.WebhookEvents, m.OutboxPublished)
	}
	return m
}
