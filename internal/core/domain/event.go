package domain

import "time"

// Lifecycle event types published after a ledger change commits.
const (
	EventPaymentReserved      = "payment.reserved"
	EventTransactionCreated   = "transaction.created"
	EventTransactionConfirmed = "transaction.confirmed"
	EventTransactionCancelled = "transaction.cancelled"
	EventTransactionFailed    = "transaction.failed"
	EventWindowReconciled     = "window.reconciled"
)

// Event is an outbound notification. Data is opaque to the ledger.
type Event struct {
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregateID"`
	OccurredAt  time.Time `json:"occurredAt"`
	Data        any       `json:"data"`
}
