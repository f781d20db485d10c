package services

import (
	"context"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/dto"
)

// AccountReaderSvc is the read side of the account directory.
type AccountReaderSvc interface {
	// GetAccount retrieves an account or fails with NotFound.
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)

	// ChildrenOf lists the active children linked to a parent.
	ChildrenOf(ctx context.Context, parentID string) ([]domain.Account, error)

	// IsActive reports whether the account exists and is active.
	IsActive(ctx context.Context, accountID string) (bool, error)
}

// AccountWriterSvc covers registration and deactivation.
type AccountWriterSvc interface {
	// RegisterAccount creates a parent or merchant account.
	RegisterAccount(ctx context.Context, req dto.RegisterAccountRequest) (*domain.Account, error)

	// CreateChild creates a child linked to the calling parent.
	CreateChild(ctx context.Context, actor domain.Actor, req dto.CreateChildRequest) (*domain.Account, error)

	// DeactivateAccount soft-deactivates an account, cascading to a parent's children.
	DeactivateAccount(ctx context.Context, actor domain.Actor, accountID string) error
}

// AccountSvcFacade combines all account-related service interfaces
type AccountSvcFacade interface {
	AccountReaderSvc
	AccountWriterSvc
}
