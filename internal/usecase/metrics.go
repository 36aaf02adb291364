package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chat_notifier"

// Delivery outcomes recorded per notification.
const (
	outcomeDelivered      = "delivered"
	outcomeTransient      = "transient"
	outcomePermanent      = "permanent"
	outcomeTransportError = "transport_error"
)

// Reconciliation results.
const (
	reconcileCleared        = "cleared"
	reconcileAlreadyCleared = "already_cleared"
	reconcileFailed         = "failed"
)

// Metrics groups the notifier's counters. It is registered on a caller
// supplied registry so tests and invocations do not share global state.
type Metrics struct {
	notificationsSent  *prometheus.CounterVec
	resolutionFailures *prometheus.CounterVec
	reconciliations    *prometheus.CounterVec
	receiptDeletes     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		notificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_sent_total",
				Help:      "Push notifications attempted, by action and delivery outcome.",
			},
			[]string{"action", "outcome"},
		),
		resolutionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recipient_resolution_failures_total",
				Help:      "Recipient lookups that did not yield exactly one user.",
			},
			[]string{"action", "reason"},
		),
		reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "token_reconciliations_total",
				Help:      "Stale device token removals, by result.",
			},
			[]string{"result"},
		),
		receiptDeletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "receipt_deletes_total",
				Help:      "Consumed read receipt deletions, by status.",
			},
			[]string{"status"}, // "success", "error"
		),
	}
}
