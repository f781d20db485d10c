package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a money movement.
type TransactionKind string

const (
	KindTransfer  TransactionKind = "transfer"
	KindPayment   TransactionKind = "payment"
	KindRefund    TransactionKind = "refund"
	KindAllowance TransactionKind = "allowance"
)

// Valid reports whether k is a known transaction kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindTransfer, KindPayment, KindRefund, KindAllowance:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusCancelled TransactionStatus = "cancelled"
	StatusFailed    TransactionStatus = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

var (
	// ErrTransactionTerminal is returned when a terminal transaction is asked to move.
	ErrTransactionTerminal = errors.New("transaction is in a terminal state")
	// ErrIllegalTransition is returned for any edge outside pending -> {completed, cancelled, failed}.
	ErrIllegalTransition = errors.New("illegal transaction status transition")
)

// Transaction is a single money movement between two accounts.
type Transaction struct {
	TransactionID string            `json:"transactionID"`
	FromAccountID string            `json:"fromAccountID"`
	ToAccountID   string            `json:"toAccountID"`
	Amount        decimal.Decimal   `json:"amount"`
	Kind          TransactionKind   `json:"kind"`
	Status        TransactionStatus `json:"status"`
	Category      string            `json:"category,omitempty"`
	ProductRef    *string           `json:"productRef,omitempty"`
	RefundOf      *string           `json:"refundOf,omitempty"`
	SettlementRef *string           `json:"settlementRef,omitempty"`
	CancelReason  *string           `json:"cancelReason,omitempty"`
	FailureReason *string           `json:"failureReason,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	CancelledAt   *time.Time        `json:"cancelledAt,omitempty"`
	AuditFields
}

// CanTransition reports whether moving from s to next is a legal edge.
func CanTransition(from, to TransactionStatus) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusCompleted || to == StatusCancelled || to == StatusFailed
}

// Complete settles a pending transaction.
func (t *Transaction) Complete(settlementRef string, at time.Time, by string) error {
	if err := t.transition(StatusCompleted); err != nil {
		return err
	}
	if settlementRef != "" {
		t.SettlementRef = &settlementRef
	}
	completedAt := at
	t.CompletedAt = &completedAt
	t.touch(at, by)
	return nil
}

// Cancel voids a pending transaction.
func (t *Transaction) Cancel(reason string, at time.Time, by string) error {
	if err := t.transition(StatusCancelled); err != nil {
		return err
	}
	if reason != "" {
		t.CancelReason = &reason
	}
	cancelledAt := at
	t.CancelledAt = &cancelledAt
	t.touch(at, by)
	return nil
}

// Fail marks a pending transaction as failed by a system-side error.
func (t *Transaction) Fail(reason string, at time.Time, by string) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}
	t.FailureReason = &reason
	t.touch(at, by)
	return nil
}

func (t *Transaction) transition(to TransactionStatus) error {
	if t.Status.Terminal() {
		return ErrTransactionTerminal
	}
	if !CanTransition(t.Status, to) {
		return ErrIllegalTransition
	}
	t.Status = to
	return nil
}

func (t *Transaction) touch(at time.Time, by string) {
	t.LastUpdatedAt = at
	t.LastUpdatedBy = by
	t.Version++
}

// TransactionDraft carries everything needed to record a new transaction.
type TransactionDraft struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Kind          TransactionKind
	Category      string
	ProductRef    *string
	RefundOf      *string
	CreatedBy     string
}
