package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Test Suite Setup ---

type AccountServiceTestSuite struct {
	suite.Suite
	mockRepo *MockAccountRepository
	clock    *clock.Fixed
	service  portssvc.AccountSvcFacade
}

func (suite *AccountServiceTestSuite) SetupTest() {
	suite.mockRepo = new(MockAccountRepository)
	suite.clock = clock.NewFixed(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	suite.service = services.NewAccountService(suite.mockRepo,
		services.WithAccountClock(suite.clock),
		services.WithDefaultTimeZone("Europe/Madrid"),
	)
}

// --- Test Cases ---

func (suite *AccountServiceTestSuite) TestRegisterAccount_Success() {
	ctx := context.Background()
	req := dto.RegisterAccountRequest{Name: "Ana", Role: domain.RoleParent}

	suite.mockRepo.On("SaveAccount", ctx, mock.AnythingOfType("domain.Account")).Return(nil).Once()

	account, err := suite.service.RegisterAccount(ctx, req)

	suite.Require().NoError(err)
	suite.Require().NotNil(account)
	suite.NotEmpty(account.AccountID)
	suite.Equal(domain.RoleParent, account.Role)
	suite.Equal("Europe/Madrid", account.TimeZone)
	suite.True(account.IsActive)
	suite.Nil(account.ParentID)
	suite.Equal(account.AccountID, account.CreatedBy)
	suite.Equal(suite.clock.Now(), account.CreatedAt)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AccountServiceTestSuite) TestRegisterAccount_ChildRoleRejected() {
	_, err := suite.service.RegisterAccount(context.Background(), dto.RegisterAccountRequest{Name: "Leo", Role: domain.RoleChild})

	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.mockRepo.AssertNotCalled(suite.T(), "SaveAccount", mock.Anything, mock.Anything)
}

func (suite *AccountServiceTestSuite) TestRegisterAccount_UnknownTimeZone() {
	_, err := suite.service.RegisterAccount(context.Background(), dto.RegisterAccountRequest{
		Name: "Shop", Role: domain.RoleMerchant, TimeZone: "Mars/Olympus",
	})

	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *AccountServiceTestSuite) TestRegisterAccount_SaveError() {
	ctx := context.Background()
	suite.mockRepo.On("SaveAccount", ctx, mock.AnythingOfType("domain.Account")).Return(assert.AnError).Once()

	account, err := suite.service.RegisterAccount(ctx, dto.RegisterAccountRequest{Name: "Shop", Role: domain.RoleMerchant})

	suite.Require().Error(err)
	suite.Nil(account)
	suite.ErrorIs(err, assert.AnError)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AccountServiceTestSuite) TestCreateChild_InheritsParentZone() {
	ctx := context.Background()
	parent := &domain.Account{AccountID: "parent-1", Role: domain.RoleParent, TimeZone: "America/Bogota", IsActive: true}

	suite.mockRepo.On("FindAccountByID", ctx, parent.AccountID).Return(parent, nil).Once()
	suite.mockRepo.On("SaveAccount", ctx, mock.MatchedBy(func(a domain.Account) bool {
		return a.Role == domain.RoleChild && a.ParentID != nil && *a.ParentID == parent.AccountID
	})).Return(nil).Once()

	child, err := suite.service.CreateChild(ctx, domain.Actor{AccountID: parent.AccountID, Role: domain.RoleParent}, dto.CreateChildRequest{Name: "Leo"})

	suite.Require().NoError(err)
	suite.Equal("America/Bogota", child.TimeZone)
	suite.Equal(parent.AccountID, child.CreatedBy)
	suite.True(parent.IsParentOf(*child))
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AccountServiceTestSuite) TestCreateChild_OnlyParents() {
	_, err := suite.service.CreateChild(context.Background(), domain.Actor{AccountID: "m-1", Role: domain.RoleMerchant}, dto.CreateChildRequest{Name: "Leo"})

	suite.ErrorIs(err, apperrors.ErrAuthorizationDenied)
	suite.mockRepo.AssertNotCalled(suite.T(), "FindAccountByID", mock.Anything, mock.Anything)
}

func (suite *AccountServiceTestSuite) TestCreateChild_InactiveParent() {
	ctx := context.Background()
	parent := &domain.Account{AccountID: "parent-1", Role: domain.RoleParent, TimeZone: "UTC"}
	suite.mockRepo.On("FindAccountByID", ctx, parent.AccountID).Return(parent, nil).Once()

	_, err := suite.service.CreateChild(ctx, domain.Actor{AccountID: parent.AccountID, Role: domain.RoleParent}, dto.CreateChildRequest{Name: "Leo"})

	suite.Equal(apperrors.ReasonAccountInactive, apperrors.ReasonOf(err))
}

func (suite *AccountServiceTestSuite) TestDeactivateAccount_ByParent() {
	ctx := context.Background()
	parentID := "parent-1"
	child := &domain.Account{AccountID: "child-1", Role: domain.RoleChild, ParentID: &parentID, IsActive: true}

	suite.mockRepo.On("FindAccountByID", ctx, child.AccountID).Return(child, nil).Once()
	suite.mockRepo.On("SetActive", ctx, child.AccountID, false, parentID, suite.clock.Now()).Return(nil).Once()

	err := suite.service.DeactivateAccount(ctx, domain.Actor{AccountID: parentID, Role: domain.RoleParent}, child.AccountID)

	suite.NoError(err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AccountServiceTestSuite) TestDeactivateAccount_Stranger() {
	ctx := context.Background()
	parentID := "parent-1"
	child := &domain.Account{AccountID: "child-1", Role: domain.RoleChild, ParentID: &parentID, IsActive: true}
	suite.mockRepo.On("FindAccountByID", ctx, child.AccountID).Return(child, nil).Once()

	err := suite.service.DeactivateAccount(ctx, domain.Actor{AccountID: "parent-2", Role: domain.RoleParent}, child.AccountID)

	suite.Equal(apperrors.ReasonNotYourChild, apperrors.ReasonOf(err))
	suite.mockRepo.AssertNotCalled(suite.T(), "SetActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *AccountServiceTestSuite) TestDeactivateAccount_AlreadyInactive() {
	ctx := context.Background()
	merchant := &domain.Account{AccountID: "merchant-1", Role: domain.RoleMerchant}
	suite.mockRepo.On("FindAccountByID", ctx, merchant.AccountID).Return(merchant, nil).Once()

	err := suite.service.DeactivateAccount(ctx, domain.Actor{AccountID: merchant.AccountID, Role: domain.RoleMerchant}, merchant.AccountID)

	suite.NoError(err)
	suite.mockRepo.AssertNotCalled(suite.T(), "SetActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *AccountServiceTestSuite) TestGetAccount_NotFound() {
	ctx := context.Background()
	suite.mockRepo.On("FindAccountByID", ctx, "missing").Return(nil, apperrors.NewNotFound("account", "missing")).Once()

	account, err := suite.service.GetAccount(ctx, "missing")

	suite.Nil(account)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *AccountServiceTestSuite) TestChildrenOf_RequiresParent() {
	ctx := context.Background()
	merchant := &domain.Account{AccountID: "merchant-1", Role: domain.RoleMerchant, IsActive: true}
	suite.mockRepo.On("FindAccountByID", ctx, merchant.AccountID).Return(merchant, nil).Once()

	_, err := suite.service.ChildrenOf(ctx, merchant.AccountID)

	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.mockRepo.AssertNotCalled(suite.T(), "ListChildren", mock.Anything, mock.Anything)
}

// --- Run Test Suite ---

func TestAccountServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceTestSuite))
}
