package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/google/uuid"
)

// accountService implements the AccountSvcFacade interface
type accountService struct {
	BaseService
	accountRepo     portsrepo.AccountRepositoryFacade
	defaultTimeZone string
}

// AccountServiceOption is a functional option for configuring the account service
type AccountServiceOption func(*accountService)

// WithAccountClock overrides the clock used for audit timestamps.
func WithAccountClock(c clock.Clock) AccountServiceOption {
	return func(s *accountService) {
		s.Clock = c
	}
}

// WithDefaultTimeZone sets the zone assigned to accounts that do not pick one.
func WithDefaultTimeZone(tz string) AccountServiceOption {
	return func(s *accountService) {
		if tz != "" {
			s.defaultTimeZone = tz
		}
	}
}

// NewAccountService creates a new account service with the provided options
func NewAccountService(repo portsrepo.AccountRepositoryFacade, options ...AccountServiceOption) portssvc.AccountSvcFacade {
	svc := &accountService{
		BaseService:     BaseService{Clock: clock.System{}},
		accountRepo:     repo,
		defaultTimeZone: domain.DefaultTimeZone,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.AccountSvcFacade = (*accountService)(nil)

func (s *accountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, apperrors.NewValidation("account id is required")
	}
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find account", slog.String("account_id", accountID))
		}
		return nil, err
	}
	return account, nil
}

func (s *accountService) ChildrenOf(ctx context.Context, parentID string) ([]domain.Account, error) {
	parent, err := s.GetAccount(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Role != domain.RoleParent {
		return nil, apperrors.NewValidation("account %s is not a parent", parentID)
	}
	children, err := s.accountRepo.ListChildren(ctx, parentID)
	if err != nil {
		s.LogError(ctx, err, "Failed to list children", slog.String("parent_id", parentID))
		return nil, err
	}
	return children, nil
}

func (s *accountService) IsActive(ctx context.Context, accountID string) (bool, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.IsActive, nil
}

func (s *accountService) RegisterAccount(ctx context.Context, req dto.RegisterAccountRequest) (*domain.Account, error) {
	if req.Role != domain.RoleParent && req.Role != domain.RoleMerchant {
		return nil, apperrors.NewValidation("only parent and merchant accounts can register; children are created by their parent")
	}
	tz, err := s.resolveTimeZone(req.TimeZone, s.defaultTimeZone)
	if err != nil {
		return nil, err
	}

	account := s.newAccount(req.Name, req.Role, tz, nil)
	account.CreatedBy = account.AccountID
	account.LastUpdatedBy = account.AccountID

	if err := s.save(ctx, account); err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Account registered", slog.String("account_id", account.AccountID), slog.String("role", string(account.Role)))
	return &account, nil
}

func (s *accountService) CreateChild(ctx context.Context, actor domain.Actor, req dto.CreateChildRequest) (*domain.Account, error) {
	if actor.Role != domain.RoleParent {
		return nil, apperrors.Denied(apperrors.ReasonNotPermitted, "only parents can create child accounts")
	}
	parent, err := s.GetAccount(ctx, actor.AccountID)
	if err != nil {
		return nil, err
	}
	if parent.Role != domain.RoleParent {
		return nil, apperrors.Denied(apperrors.ReasonNotPermitted, "only parents can create child accounts")
	}
	if !parent.IsActive {
		return nil, apperrors.Denied(apperrors.ReasonAccountInactive, "parent account %s is inactive", parent.AccountID)
	}
	tz, err := s.resolveTimeZone(req.TimeZone, parent.TimeZone)
	if err != nil {
		return nil, err
	}

	parentID := parent.AccountID
	child := s.newAccount(req.Name, domain.RoleChild, tz, &parentID)
	child.CreatedBy = parent.AccountID
	child.LastUpdatedBy = parent.AccountID

	if err := s.save(ctx, child); err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Child account created", slog.String("account_id", child.AccountID), slog.String("parent_id", parentID))
	return &child, nil
}

func (s *accountService) DeactivateAccount(ctx context.Context, actor domain.Actor, accountID string) error {
	target, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	allowed := actor.AccountID == target.AccountID
	if !allowed && actor.Role == domain.RoleParent {
		allowed = domain.Account{AccountID: actor.AccountID, Role: actor.Role}.IsParentOf(*target)
	}
	if !allowed {
		return apperrors.Denied(apperrors.ReasonNotYourChild, "account %s may not deactivate %s", actor.AccountID, accountID)
	}
	if !target.IsActive {
		return nil
	}

	if err := s.accountRepo.SetActive(ctx, accountID, false, actor.AccountID, s.Now()); err != nil {
		s.LogError(ctx, err, "Failed to deactivate account", slog.String("account_id", accountID))
		return fmt.Errorf("deactivating account %s: %w", accountID, err)
	}
	s.LogInfo(ctx, "Account deactivated", slog.String("account_id", accountID), slog.String("role", string(target.Role)))
	return nil
}

func (s *accountService) newAccount(name string, role domain.Role, tz string, parentID *string) domain.Account {
	now := s.Now()
	return domain.Account{
		AccountID: uuid.NewString(),
		Name:      name,
		Role:      role,
		ParentID:  parentID,
		TimeZone:  tz,
		IsActive:  true,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
			Version:       1,
		},
	}
}

func (s *accountService) save(ctx context.Context, account domain.Account) error {
	if account.Name == "" {
		return apperrors.NewValidation("account name is required")
	}
	if err := s.accountRepo.SaveAccount(ctx, account); err != nil {
		s.LogError(ctx, err, "Failed to save account", slog.String("account_id", account.AccountID))
		return fmt.Errorf("saving account: %w", err)
	}
	return nil
}

func (s *accountService) resolveTimeZone(requested, fallback string) (string, error) {
	tz := requested
	if tz == "" {
		tz = fallback
	}
	if tz == "" {
		tz = domain.DefaultTimeZone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", apperrors.NewValidation("unknown time zone %q", tz)
	}
	return tz, nil
}
