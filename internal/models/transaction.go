package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the stored form of a transaction kind.
type TransactionKind string

// TransactionStatus is the stored form of a transaction status.
type TransactionStatus string

// Transaction is a row of the transactions table.
type Transaction struct {
	TransactionID string            `db:"transaction_id"`
	FromAccountID string            `db:"from_account_id"`
	ToAccountID   string            `db:"to_account_id"`
	Amount        decimal.Decimal   `db:"amount"`
	Kind          TransactionKind   `db:"kind"`
	Status        TransactionStatus `db:"status"`
	Category      string            `db:"category"`
	ProductRef    *string           `db:"product_ref"`
	RefundOf      *string           `db:"refund_of"`
	SettlementRef *string           `db:"settlement_ref"`
	CancelReason  *string           `db:"cancel_reason"`
	FailureReason *string           `db:"failure_reason"`
	CompletedAt   *time.Time        `db:"completed_at"`
	CancelledAt   *time.Time        `db:"cancelled_at"`
	AuditFields
}

// Reservation is a row of the transaction_reservations table.
type Reservation struct {
	TransactionID string          `db:"transaction_id"`
	WindowID      string          `db:"window_id"`
	PeriodStart   time.Time       `db:"period_start"`
	Amount        decimal.Decimal `db:"amount"`
}
