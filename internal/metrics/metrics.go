// Package metrics exposes Prometheus instrumentation for the entitlement core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts inbound billing events by type and result.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalscope_webhook_events_total",
		Help: "Inbound billing webhook events by type and processing result.",
	}, []string{"type", "result"})

	// EntitlementDecisions counts allow/deny decisions by action.
	EntitlementDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalscope_entitlement_decisions_total",
		Help: "Entitlement decisions by gated action and outcome.",
	}, []string{"action", "outcome"})

	// ReconciliationCorrections counts registry records corrected from the
	// billing provider on the read path or by the background sweep.
	ReconciliationCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalscope_reconciliation_corrections_total",
		Help: "Subscription records corrected from the billing provider.",
	})

	// ReconciliationFailures counts failed provider queries.
	ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalscope_reconciliation_failures_total",
		Help: "Failed billing provider reconciliation queries.",
	})
)
