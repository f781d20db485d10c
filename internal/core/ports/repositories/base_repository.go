package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/shopspring/decimal"
)

// LedgerStore is the set of reads and writes available inside one atomic unit.
// It is the only way consumed is ever written.
type LedgerStore interface {
	// FindTransactionForUpdate loads a transaction and holds it exclusively until the unit ends.
	FindTransactionForUpdate(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// SaveTransaction inserts a new transaction.
	SaveTransaction(ctx context.Context, txn domain.Transaction) error

	// UpdateTransactionStatus writes the status, timestamps and references of an existing transaction.
	UpdateTransactionStatus(ctx context.Context, txn domain.Transaction) error

	// IncrementConsumed adds amount to a window period only if the stored window
	// is still active and the result stays within its stored ceiling. Anything
	// else, including a concurrent writer that got there first, yields a Conflict.
	IncrementConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error

	// LockUsage holds a window period's usage row until the unit ends, creating it
	// when missing, and returns the consumed amount it holds.
	LockUsage(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error)

	// DecrementConsumed subtracts amount from a window period, floored at zero.
	DecrementConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error

	// SetConsumed overwrites a period's consumed with a value recomputed from the ledger.
	SetConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error

	// SaveReservations records the capacity a payment holds.
	SaveReservations(ctx context.Context, reservations []domain.Reservation) error

	// FindReservations returns the capacity a payment holds.
	FindReservations(ctx context.Context, transactionID string) ([]domain.Reservation, error)

	// SumReserved is the in-unit variant of TransactionReader.SumReserved.
	SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error)

	// SumRefunds sums pending and completed refunds referencing a payment.
	SumRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error)
}

// UnitOfWork runs fn so that either every write performed through the store commits or none does.
type UnitOfWork interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, store LedgerStore) error) error
}
