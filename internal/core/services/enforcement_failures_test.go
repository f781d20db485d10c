package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type EnforcementFailureTestSuite struct {
	suite.Suite
	accounts *MockAccountRepository
	policy   *MockLimitPolicy
	ledger   *MockLedger
	service  portssvc.EnforcementSvc
	child    domain.Account
	merchant domain.Account
	usage    domain.WindowUsage
}

func (suite *EnforcementFailureTestSuite) SetupTest() {
	suite.accounts = new(MockAccountRepository)
	suite.policy = new(MockLimitPolicy)
	suite.ledger = new(MockLedger)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	parentID := "parent-1"
	suite.child = domain.Account{AccountID: "child-1", Role: domain.RoleChild, ParentID: &parentID, IsActive: true}
	suite.merchant = domain.Account{AccountID: "merchant-1", Role: domain.RoleMerchant, IsActive: true}
	window := domain.LimitWindow{WindowID: "w-1", ChildID: suite.child.AccountID, Kind: domain.WindowDaily, Ceiling: dec("50"), IsActive: true}
	suite.usage = domain.WindowUsage{Window: window, Period: window.PeriodAt(now, time.UTC)}

	suite.accounts.On("FindAccountsByIDs", mock.Anything, []string{suite.child.AccountID, suite.merchant.AccountID}).
		Return(map[string]domain.Account{suite.child.AccountID: suite.child, suite.merchant.AccountID: suite.merchant}, nil)
	suite.policy.On("ApplicableWindows", mock.Anything, suite.child.AccountID, now, "").
		Return([]domain.WindowUsage{suite.usage}, nil)

	suite.service = services.NewEnforcementService(
		portsrepo.RepositoryProvider{AccountRepo: suite.accounts},
		suite.policy,
		suite.ledger,
		services.WithEnforcementClock(clock.NewFixed(now)),
		services.WithMaxConflictRetries(2),
		services.WithRetryInterval(time.Millisecond),
	)
}

func (suite *EnforcementFailureTestSuite) attempt() (*domain.Transaction, error) {
	return suite.service.AttemptPayment(context.Background(),
		domain.Actor{AccountID: suite.child.AccountID, Role: domain.RoleChild},
		domain.PaymentRequest{ChildID: suite.child.AccountID, MerchantID: suite.merchant.AccountID, Amount: dec("10")})
}

func (suite *EnforcementFailureTestSuite) TestUnexpectedErrorRecordsFailure() {
	storeErr := apperrors.Wrap(apperrors.KindInternal, assert.AnError, "reserving payment failed")
	suite.ledger.On("CreateReserved", mock.Anything, mock.AnythingOfType("domain.TransactionDraft"), []domain.WindowUsage{suite.usage}).
		Return(nil, storeErr).Once()
	suite.ledger.On("RecordFailure", mock.Anything, mock.AnythingOfType("domain.TransactionDraft"), storeErr).
		Return(&domain.Transaction{Status: domain.StatusFailed}, nil).Once()

	txn, err := suite.attempt()

	suite.Nil(txn)
	suite.ErrorIs(err, apperrors.ErrInternal)
	suite.ledger.AssertExpectations(suite.T())
}

func (suite *EnforcementFailureTestSuite) TestConflictIsRetriedThenReturned() {
	conflict := apperrors.New(apperrors.KindConflict, "window w-1 has no capacity left")
	suite.ledger.On("CreateReserved", mock.Anything, mock.Anything, mock.Anything).Return(nil, conflict).Times(3)

	_, err := suite.attempt()

	suite.ErrorIs(err, apperrors.ErrConflict)
	suite.ledger.AssertNumberOfCalls(suite.T(), "CreateReserved", 3)
	suite.ledger.AssertNotCalled(suite.T(), "RecordFailure", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *EnforcementFailureTestSuite) TestConflictThenSuccess() {
	conflict := apperrors.New(apperrors.KindConflict, "window w-1 has no capacity left")
	created := &domain.Transaction{TransactionID: "t-1", Status: domain.StatusPending}
	suite.ledger.On("CreateReserved", mock.Anything, mock.Anything, mock.Anything).Return(nil, conflict).Once()
	suite.ledger.On("CreateReserved", mock.Anything, mock.Anything, mock.Anything).Return(created, nil).Once()

	txn, err := suite.attempt()

	suite.Require().NoError(err)
	suite.Equal("t-1", txn.TransactionID)
}

func (suite *EnforcementFailureTestSuite) TestTimeoutIsNotRecordedAsFailure() {
	timeout := apperrors.Wrap(apperrors.KindPersistenceTimeout, context.DeadlineExceeded, "reserving payment timed out")
	suite.ledger.On("CreateReserved", mock.Anything, mock.Anything, mock.Anything).Return(nil, timeout).Once()

	_, err := suite.attempt()

	suite.ErrorIs(err, apperrors.ErrPersistenceTimeout)
	suite.True(apperrors.IsRetriable(err))
	suite.ledger.AssertNotCalled(suite.T(), "RecordFailure", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnforcementFailureTestSuite(t *testing.T) {
	suite.Run(t, new(EnforcementFailureTestSuite))
}
