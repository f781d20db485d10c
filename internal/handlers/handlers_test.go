package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/handlers"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
	"github.com/SscSPs/allowance_wallet/internal/repositories/memory"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret-key-that-is-long-enough"

// --- Test Suite ---
type WalletAPITestSuite struct {
	suite.Suite
	router   *gin.Engine
	clock    *clock.Fixed
	parent   dto.AccountResponse
	child    dto.AccountResponse
	merchant dto.AccountResponse
}

// generateTestToken creates a JWT for the given account.
func (suite *WalletAPITestSuite) generateTestToken(accountID string, role domain.Role) string {
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "allowance-test",
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		suite.FailNow("Failed to sign test token", err.Error())
	}
	return signed
}

func (suite *WalletAPITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.clock = clock.NewFixed(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		JWTSecret:           testSecret,
		RateLimit:           "1000-M",
		PersistenceTimeout:  time.Second,
		MaxConflictRetries:  3,
		LimitStackingPolicy: config.StackingStack,
		DefaultTimeZone:     "UTC",
	}
	container := services.NewServiceContainer(cfg, memory.NewRepositoryProvider(memory.NewStore()), services.Integrations{Clock: suite.clock})

	suite.router = gin.New()
	suite.router.Use(middleware.StructuredLoggingMiddleware(slogDiscard()))
	suite.Require().NoError(handlers.RegisterRoutes(suite.router, cfg, container, handlers.RouteDeps{Clock: suite.clock}))

	suite.parent = suite.register("Ana", domain.RoleParent)
	suite.merchant = suite.register("Cantina", domain.RoleMerchant)
	w := suite.do(http.MethodPost, "/api/v1/children", suite.tokenFor(suite.parent), dto.CreateChildRequest{Name: "Leo"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	suite.decode(w, &suite.child)
}

// --- Helpers ---

func (suite *WalletAPITestSuite) do(method, url, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *WalletAPITestSuite) decode(w *httptest.ResponseRecorder, v any) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (suite *WalletAPITestSuite) register(name string, role domain.Role) dto.AccountResponse {
	w := suite.do(http.MethodPost, "/register", "", dto.RegisterAccountRequest{Name: name, Role: role})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var acc dto.AccountResponse
	suite.decode(w, &acc)
	return acc
}

func (suite *WalletAPITestSuite) tokenFor(acc dto.AccountResponse) string {
	return suite.generateTestToken(acc.AccountID, acc.Role)
}

func (suite *WalletAPITestSuite) createDailyLimit(ceiling, category string) dto.WindowResponse {
	w := suite.do(http.MethodPost, "/api/v1/children/"+suite.child.AccountID+"/windows", suite.tokenFor(suite.parent), map[string]any{
		"kind":     "daily",
		"ceiling":  ceiling,
		"category": category,
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var window dto.WindowResponse
	suite.decode(w, &window)
	return window
}

func (suite *WalletAPITestSuite) pay(amount, category string) *httptest.ResponseRecorder {
	return suite.do(http.MethodPost, "/api/v1/payments", suite.tokenFor(suite.child), map[string]any{
		"merchantID": suite.merchant.AccountID,
		"amount":     amount,
		"category":   category,
	})
}

// --- Test Cases ---

func (suite *WalletAPITestSuite) TestHealth() {
	w := suite.do(http.MethodGet, "/health", "", nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *WalletAPITestSuite) TestMissingToken() {
	w := suite.do(http.MethodGet, "/api/v1/accounts/me", "", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *WalletAPITestSuite) TestChildInheritsParent() {
	suite.Equal(suite.parent.AccountID, suite.child.ParentID)
	suite.Equal(domain.RoleChild, suite.child.Role)

	w := suite.do(http.MethodGet, "/api/v1/children", suite.tokenFor(suite.parent), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var children []dto.AccountResponse
	suite.decode(w, &children)
	suite.Len(children, 1)
}

func (suite *WalletAPITestSuite) TestAccountVisibility() {
	path := "/api/v1/accounts/" + suite.child.AccountID

	suite.Equal(http.StatusOK, suite.do(http.MethodGet, path, suite.tokenFor(suite.parent), nil).Code)
	suite.Equal(http.StatusOK, suite.do(http.MethodGet, path, suite.tokenFor(suite.child), nil).Code)

	w := suite.do(http.MethodGet, path, suite.tokenFor(suite.merchant), nil)
	suite.Equal(http.StatusForbidden, w.Code)
	var resp handlers.ErrorResponse
	suite.decode(w, &resp)
	suite.Equal("NotPermitted", resp.Reason)
}

func (suite *WalletAPITestSuite) TestPaymentLifecycle() {
	window := suite.createDailyLimit("50", "comida")

	w := suite.pay("30", "comida")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var first dto.TransactionResponse
	suite.decode(w, &first)
	suite.Equal(domain.StatusPending, first.Status)
	suite.True(decimal.RequireFromString("30").Equal(first.Amount))

	w = suite.pay("25", "comida")
	suite.Require().Equal(http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var denied handlers.ErrorResponse
	suite.decode(w, &denied)
	suite.Equal("LIMIT_EXCEEDED", denied.Kind)
	suite.Equal(window.WindowID, denied.Details["windowId"])
	suite.Equal("20", denied.Details["remaining"])

	w = suite.do(http.MethodPost, "/api/v1/transactions/"+first.TransactionID+"/confirm", suite.tokenFor(suite.merchant), dto.ConfirmTransactionRequest{SettlementRef: "pos-7"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var confirmed dto.TransactionResponse
	suite.decode(w, &confirmed)
	suite.Equal(domain.StatusCompleted, confirmed.Status)

	w = suite.do(http.MethodPost, "/api/v1/transactions/"+first.TransactionID+"/cancel", suite.tokenFor(suite.parent), nil)
	suite.Equal(http.StatusConflict, w.Code)

	w = suite.do(http.MethodGet, "/api/v1/accounts/"+suite.child.AccountID+"/transactions?limit=10", suite.tokenFor(suite.parent), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var page dto.ListTransactionsResponse
	suite.decode(w, &page)
	suite.Len(page.Transactions, 1)
	suite.Nil(page.NextToken)
}

func (suite *WalletAPITestSuite) TestCancelReleasesCapacity() {
	suite.createDailyLimit("40", "")
	w := suite.pay("40", "")
	suite.Require().Equal(http.StatusCreated, w.Code)
	var txn dto.TransactionResponse
	suite.decode(w, &txn)

	w = suite.do(http.MethodGet, "/api/v1/children/"+suite.child.AccountID+"/windows/applicable", suite.tokenFor(suite.child), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var usages []dto.WindowUsageResponse
	suite.decode(w, &usages)
	suite.Require().Len(usages, 1)
	suite.True(usages[0].Remaining.IsZero())

	cancelPath := "/api/v1/transactions/" + txn.TransactionID + "/cancel"
	suite.Equal(http.StatusOK, suite.do(http.MethodPost, cancelPath, suite.tokenFor(suite.child), dto.CancelTransactionRequest{Reason: "changed mind"}).Code)
	suite.Equal(http.StatusOK, suite.do(http.MethodPost, cancelPath, suite.tokenFor(suite.child), nil).Code)

	suite.Equal(http.StatusCreated, suite.pay("40", "").Code)
}

func (suite *WalletAPITestSuite) TestPaymentWithoutLimitsIsDenied() {
	w := suite.pay("1", "")

	suite.Equal(http.StatusForbidden, w.Code)
	var resp handlers.ErrorResponse
	suite.decode(w, &resp)
	suite.Equal("NoLimitConfigured", resp.Reason)
}

func (suite *WalletAPITestSuite) TestInvalidAmount() {
	suite.createDailyLimit("40", "")

	suite.Equal(http.StatusBadRequest, suite.pay("0", "").Code)
	suite.Equal(http.StatusBadRequest, suite.pay("-3", "").Code)
	suite.Equal(http.StatusBadRequest, suite.pay("0.12345", "").Code)
	suite.Equal(http.StatusCreated, suite.pay("0.1234", "").Code)

	w := suite.do(http.MethodPost, "/api/v1/children/"+suite.child.AccountID+"/windows", suite.tokenFor(suite.parent), map[string]any{
		"kind": "weekly", "ceiling": "10.00001",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *WalletAPITestSuite) TestOverlappingWindow() {
	suite.createDailyLimit("40", "")

	w := suite.do(http.MethodPost, "/api/v1/children/"+suite.child.AccountID+"/windows", suite.tokenFor(suite.parent), map[string]any{
		"kind": "daily", "ceiling": "10",
	})

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *WalletAPITestSuite) TestAllowanceAndTransferRules() {
	w := suite.do(http.MethodPost, "/api/v1/transactions", suite.tokenFor(suite.parent), map[string]any{
		"kind": "allowance", "toAccountID": suite.child.AccountID, "amount": "15",
	})
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())

	w = suite.do(http.MethodPost, "/api/v1/transactions", suite.tokenFor(suite.parent), map[string]any{
		"kind": "allowance", "toAccountID": suite.merchant.AccountID, "amount": "15",
	})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.do(http.MethodPost, "/api/v1/transactions", suite.tokenFor(suite.parent), map[string]any{
		"kind": "refund", "toAccountID": suite.child.AccountID, "amount": "15",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *WalletAPITestSuite) TestDeleteUsedWindowDeactivates() {
	window := suite.createDailyLimit("40", "")
	suite.Require().Equal(http.StatusCreated, suite.pay("5", "").Code)

	w := suite.do(http.MethodDelete, "/api/v1/windows/"+window.WindowID, suite.tokenFor(suite.parent), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp dto.DeleteWindowResponse
	suite.decode(w, &resp)
	suite.False(resp.Deleted)

	w = suite.do(http.MethodPost, "/api/v1/windows/"+window.WindowID+"/reconcile", suite.tokenFor(suite.parent), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var usage dto.WindowUsageResponse
	suite.decode(w, &usage)
	suite.True(decimal.RequireFromString("5").Equal(usage.Consumed))
}

// --- Run Test Suite ---

func TestWalletAPITestSuite(t *testing.T) {
	suite.Run(t, new(WalletAPITestSuite))
}
