package services_test

import (
	"context"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock type for the AccountRepositoryFacade interface
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Account, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) SetActive(ctx context.Context, accountID string, active bool, userID string, now time.Time) error {
	args := m.Called(ctx, accountID, active, userID, now)
	return args.Error(0)
}

// MockLimitPolicy is a mock type for the LimitPolicyReaderSvc interface
type MockLimitPolicy struct {
	mock.Mock
}

func (m *MockLimitPolicy) ApplicableWindows(ctx context.Context, childID string, at time.Time, category string) ([]domain.WindowUsage, error) {
	args := m.Called(ctx, childID, at, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WindowUsage), args.Error(1)
}

func (m *MockLimitPolicy) RemainingCapacity(usage domain.WindowUsage) decimal.Decimal {
	return usage.RemainingCapacity()
}

func (m *MockLimitPolicy) ResolveWindows(ctx context.Context, actor domain.Actor, childID string, at time.Time, category string) ([]domain.WindowUsage, error) {
	args := m.Called(ctx, actor, childID, at, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WindowUsage), args.Error(1)
}

func (m *MockLimitPolicy) GetWindow(ctx context.Context, actor domain.Actor, windowID string) (*domain.LimitWindow, error) {
	args := m.Called(ctx, actor, windowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LimitWindow), args.Error(1)
}

func (m *MockLimitPolicy) ListWindows(ctx context.Context, actor domain.Actor, childID string) ([]domain.LimitWindow, error) {
	args := m.Called(ctx, actor, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LimitWindow), args.Error(1)
}

// MockLedger is a mock type for the LedgerSvcFacade interface
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) txnResult(args mock.Arguments) (*domain.Transaction, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockLedger) GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, actor, transactionID))
}

func (m *MockLedger) ListTransactions(ctx context.Context, actor domain.Actor, accountID string, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	args := m.Called(ctx, actor, accountID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListTransactionsResponse), args.Error(1)
}

func (m *MockLedger) SpentInWindow(ctx context.Context, usage domain.WindowUsage) (decimal.Decimal, error) {
	args := m.Called(ctx, usage)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedger) Create(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, draft))
}

func (m *MockLedger) CreateRefund(ctx context.Context, draft domain.TransactionDraft, check portssvc.RefundCheck) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, draft, check))
}

func (m *MockLedger) CreateReserved(ctx context.Context, draft domain.TransactionDraft, usages []domain.WindowUsage) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, draft, usages))
}

func (m *MockLedger) Confirm(ctx context.Context, actor *domain.Actor, transactionID string, settlementRef string) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, actor, transactionID, settlementRef))
}

func (m *MockLedger) Cancel(ctx context.Context, actor *domain.Actor, transactionID string, reason string) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, actor, transactionID, reason))
}

func (m *MockLedger) RecordFailure(ctx context.Context, draft domain.TransactionDraft, cause error) (*domain.Transaction, error) {
	return m.txnResult(m.Called(ctx, draft, cause))
}

func (m *MockLedger) Reconcile(ctx context.Context, actor *domain.Actor, windowID string, at time.Time) (*domain.WindowUsage, error) {
	args := m.Called(ctx, actor, windowID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WindowUsage), args.Error(1)
}
