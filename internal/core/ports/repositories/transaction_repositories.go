package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransactionCursor marks the position after which the next page starts.
type TransactionCursor struct {
	CreatedAt     time.Time
	TransactionID string
}

// TransactionReader defines read operations outside an atomic unit.
type TransactionReader interface {
	// FindTransactionByID retrieves a transaction.
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// ListTransactionsByAccount returns transactions where the account is payer or payee,
	// newest first, starting strictly after the cursor when one is given.
	ListTransactionsByAccount(ctx context.Context, accountID string, limit int, after *TransactionCursor) ([]domain.Transaction, error)

	// SumReserved sums the reservations that pending and completed payments hold
	// against one window period.
	SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error)
}

// TransactionRepositoryFacade combines all transaction-related repository interfaces
type TransactionRepositoryFacade interface {
	TransactionReader
}
