package services

import (
	"context"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/shopspring/decimal"
)

// LedgerReaderSvc reads transactions and derived spend.
type LedgerReaderSvc interface {
	// GetTransaction returns a transaction visible to the actor.
	GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (*domain.Transaction, error)

	// ListTransactions pages through an account's transactions, newest first.
	ListTransactions(ctx context.Context, actor domain.Actor, accountID string, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error)

	// SpentInWindow is the authoritative spend for a resolved window period.
	SpentInWindow(ctx context.Context, usage domain.WindowUsage) (decimal.Decimal, error)
}

// RefundCheck decides whether a refund may be recorded given the referenced
// payment (nil when it does not exist) and the amount already refunded from it.
type RefundCheck func(original *domain.Transaction, refundedSoFar decimal.Decimal) error

// LedgerWriterSvc records and moves transactions through their lifecycle.
// A nil actor means the call comes from a trusted system component.
type LedgerWriterSvc interface {
	// Create records a pending transaction without touching any window.
	Create(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error)

	// CreateRefund records a pending refund once check accepts it. The payment
	// stays locked from the check until the refund is stored.
	CreateRefund(ctx context.Context, draft domain.TransactionDraft, check RefundCheck) (*domain.Transaction, error)

	// CreateReserved reserves capacity in every usage and records the pending
	// payment in one atomic unit.
	CreateReserved(ctx context.Context, draft domain.TransactionDraft, usages []domain.WindowUsage) (*domain.Transaction, error)

	// Confirm settles a pending transaction.
	Confirm(ctx context.Context, actor *domain.Actor, transactionID string, settlementRef string) (*domain.Transaction, error)

	// Cancel voids a pending transaction and releases its reservations. Repeating it is a no-op.
	Cancel(ctx context.Context, actor *domain.Actor, transactionID string, reason string) (*domain.Transaction, error)

	// RecordFailure stores a failed transaction for a creation that could not complete.
	RecordFailure(ctx context.Context, draft domain.TransactionDraft, cause error) (*domain.Transaction, error)

	// Reconcile recomputes consumed for the window period containing at.
	Reconcile(ctx context.Context, actor *domain.Actor, windowID string, at time.Time) (*domain.WindowUsage, error)
}

// LedgerSvcFacade combines all ledger service interfaces
type LedgerSvcFacade interface {
	LedgerReaderSvc
	LedgerWriterSvc
}
