package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/shopspring/decimal"
)

// LimitWindowReader defines read operations for limit windows and their usage.
type LimitWindowReader interface {
	// FindWindowByID retrieves a window definition.
	FindWindowByID(ctx context.Context, windowID string) (*domain.LimitWindow, error)

	// ListWindowsByChild returns the windows of a child, optionally only active ones.
	ListWindowsByChild(ctx context.Context, childID string, activeOnly bool) ([]domain.LimitWindow, error)

	// ListActiveWindows returns every active window, used by reconciliation sweeps.
	ListActiveWindows(ctx context.Context) ([]domain.LimitWindow, error)

	// FindConsumed returns the consumed amount for one window period; zero when untouched.
	FindConsumed(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error)

	// TotalConsumed sums consumed across every period of a window.
	TotalConsumed(ctx context.Context, windowID string) (decimal.Decimal, error)
}

// LimitWindowWriter defines write operations for window definitions.
// None of these touch consumed; that belongs to the ledger.
type LimitWindowWriter interface {
	SaveWindow(ctx context.Context, window domain.LimitWindow) error
	UpdateWindow(ctx context.Context, window domain.LimitWindow) error
	DeleteWindow(ctx context.Context, windowID string) error
}

// LimitWindowRepositoryFacade combines all window-related repository interfaces
type LimitWindowRepositoryFacade interface {
	LimitWindowReader
	LimitWindowWriter
}
