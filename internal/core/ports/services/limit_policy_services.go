package services

import (
	"context"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/shopspring/decimal"
)

// LimitPolicyReaderSvc resolves which windows constrain a child's spend.
type LimitPolicyReaderSvc interface {
	// ApplicableWindows returns the active windows covering at for the category,
	// resolved to their current period and ordered by kind priority.
	// It fails with NotFound when nothing applies.
	ApplicableWindows(ctx context.Context, childID string, at time.Time, category string) ([]domain.WindowUsage, error)

	// RemainingCapacity is ceiling minus consumed, never negative.
	RemainingCapacity(usage domain.WindowUsage) decimal.Decimal

	// ResolveWindows is ApplicableWindows for a caller allowed to see the child's limits.
	ResolveWindows(ctx context.Context, actor domain.Actor, childID string, at time.Time, category string) ([]domain.WindowUsage, error)

	// GetWindow retrieves one window definition.
	GetWindow(ctx context.Context, actor domain.Actor, windowID string) (*domain.LimitWindow, error)

	// ListWindows lists every window of a child.
	ListWindows(ctx context.Context, actor domain.Actor, childID string) ([]domain.LimitWindow, error)
}

// LimitPolicyWriterSvc mutates window metadata. Consumed is never touched here.
type LimitPolicyWriterSvc interface {
	CreateWindow(ctx context.Context, actor domain.Actor, childID string, req dto.CreateWindowRequest) (*domain.LimitWindow, error)
	UpdateWindow(ctx context.Context, actor domain.Actor, windowID string, req dto.UpdateWindowRequest) (*domain.LimitWindow, error)
	DeactivateWindow(ctx context.Context, actor domain.Actor, windowID string) (*domain.LimitWindow, error)

	// DeleteWindow removes an unused window, or deactivates it when anything was consumed.
	// The boolean reports whether the row was actually removed.
	DeleteWindow(ctx context.Context, actor domain.Actor, windowID string) (bool, error)
}

// LimitPolicySvcFacade combines all limit-policy service interfaces
type LimitPolicySvcFacade interface {
	LimitPolicyReaderSvc
	LimitPolicyWriterSvc
}
