package handlers

import (
	"log/slog"
	"net/http"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/gin-gonic/gin"
)

// transactionHandler handles payments and the transaction lifecycle.
type transactionHandler struct {
	enforcement portssvc.EnforcementSvc
	ledger      portssvc.LedgerSvcFacade
}

func newTransactionHandler(es portssvc.EnforcementSvc, ls portssvc.LedgerSvcFacade) *transactionHandler {
	return &transactionHandler{enforcement: es, ledger: ls}
}

// registerTransactionRoutes registers payment and transaction routes.
func registerTransactionRoutes(rg *gin.RouterGroup, es portssvc.EnforcementSvc, ls portssvc.LedgerSvcFacade) {
	h := newTransactionHandler(es, ls)

	rg.POST("/payments", h.createPayment)
	rg.GET("/accounts/:accountID/transactions", h.listTransactions)

	transactions := rg.Group("/transactions")
	{
		transactions.POST("", h.createTransaction)
		transactions.GET("/:transactionID", h.getTransaction)
		transactions.POST("/:transactionID/confirm", h.confirmTransaction)
		transactions.POST("/:transactionID/cancel", h.cancelTransaction)
	}
}

// createPayment godoc
// @Summary Pay a merchant
// @Description A child pays a merchant. The payment is checked against every applicable limit and reserved as pending.
// @Tags transactions
// @Accept  json
// @Produce  json
// @Param   payment body dto.CreatePaymentRequest true "Payment details"
// @Success 201 {object} dto.TransactionResponse
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Payment not allowed"
// @Failure 409 {object} ErrorResponse "Concurrent payment won the remaining capacity"
// @Failure 422 {object} ErrorResponse "Spending limit exceeded"
// @Failure 503 {object} ErrorResponse "Storage timed out, retry"
// @Security BearerAuth
// @Router /payments [post]
func (h *transactionHandler) createPayment(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request format", err)
		return
	}

	logger.Info("Received payment attempt",
		slog.String("merchant_id", req.MerchantID),
		slog.String("amount", req.Amount.String()),
		slog.String("category", req.Category),
	)

	txn, err := h.enforcement.AttemptPayment(c.Request.Context(), actor, domain.PaymentRequest{
		ChildID:    actor.AccountID,
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Category:   req.Category,
		ProductRef: req.ProductRef,
	})
	if err != nil {
		respondError(c, err, "Failed to process payment")
		return
	}

	logger.Info("Payment reserved", slog.String("transaction_id", txn.TransactionID))
	c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
}

// createTransaction godoc
// @Summary Record a transfer, allowance or refund
// @Description Movements that are not limit-checked. The caller is always the paying side.
// @Tags transactions
// @Accept  json
// @Produce  json
// @Param   transaction body dto.CreateTransactionRequest true "Movement details"
// @Success 201 {object} dto.TransactionResponse
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Movement not allowed"
// @Security BearerAuth
// @Router /transactions [post]
func (h *transactionHandler) createTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request format", err)
		return
	}

	txn, err := h.enforcement.Submit(c.Request.Context(), actor, domain.MovementRequest{
		FromAccountID: actor.AccountID,
		ToAccountID:   req.ToAccountID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		RefundOf:      req.RefundOf,
	})
	if err != nil {
		respondError(c, err, "Failed to record transaction")
		return
	}

	logger.Info("Transaction recorded", slog.String("transaction_id", txn.TransactionID), slog.String("kind", string(txn.Kind)))
	c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
}

// getTransaction godoc
// @Summary Get a transaction
// @Tags transactions
// @Produce  json
// @Param   transactionID path string true "Transaction ID"
// @Success 200 {object} dto.TransactionResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Security BearerAuth
// @Router /transactions/{transactionID} [get]
func (h *transactionHandler) getTransaction(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	txn, err := h.ledger.GetTransaction(c.Request.Context(), actor, c.Param("transactionID"))
	if err != nil {
		respondError(c, err, "Failed to retrieve transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// confirmTransaction godoc
// @Summary Confirm a pending transaction
// @Tags transactions
// @Accept  json
// @Produce  json
// @Param   transactionID path string true "Transaction ID"
// @Param   confirmation body dto.ConfirmTransactionRequest false "Settlement reference"
// @Success 200 {object} dto.TransactionResponse
// @Failure 403 {object} ErrorResponse "Not a party to the transaction"
// @Failure 409 {object} ErrorResponse "Transaction already terminal"
// @Security BearerAuth
// @Router /transactions/{transactionID}/confirm [post]
func (h *transactionHandler) confirmTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ConfirmTransactionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "request format", err)
			return
		}
	}

	txn, err := h.ledger.Confirm(c.Request.Context(), &actor, c.Param("transactionID"), req.SettlementRef)
	if err != nil {
		respondError(c, err, "Failed to confirm transaction")
		return
	}

	logger.Info("Transaction confirmed", slog.String("transaction_id", txn.TransactionID))
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// cancelTransaction godoc
// @Summary Cancel a pending transaction
// @Description Voids the transaction and releases any limit capacity it reserved. Cancelling twice is a no-op.
// @Tags transactions
// @Accept  json
// @Produce  json
// @Param   transactionID path string true "Transaction ID"
// @Param   cancellation body dto.CancelTransactionRequest false "Reason"
// @Success 200 {object} dto.TransactionResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 409 {object} ErrorResponse "Transaction already completed or failed"
// @Security BearerAuth
// @Router /transactions/{transactionID}/cancel [post]
func (h *transactionHandler) cancelTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CancelTransactionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "request format", err)
			return
		}
	}

	txn, err := h.ledger.Cancel(c.Request.Context(), &actor, c.Param("transactionID"), req.Reason)
	if err != nil {
		respondError(c, err, "Failed to cancel transaction")
		return
	}

	logger.Info("Transaction cancelled", slog.String("transaction_id", txn.TransactionID))
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// listTransactions godoc
// @Summary List an account's transactions
// @Description Newest first, paginated with an opaque token.
// @Tags transactions
// @Produce  json
// @Param   accountID path string true "Account ID"
// @Param   limit query int false "Page size" default(20)
// @Param   nextToken query string false "Token from the previous page"
// @Success 200 {object} dto.ListTransactionsResponse
// @Failure 400 {object} ErrorResponse "Invalid query parameters"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Security BearerAuth
// @Router /accounts/{accountID}/transactions [get]
func (h *transactionHandler) listTransactions(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var params dto.ListTransactionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "query parameters", err)
		return
	}

	resp, err := h.ledger.ListTransactions(c.Request.Context(), actor, c.Param("accountID"), params)
	if err != nil {
		respondError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, resp)
}
