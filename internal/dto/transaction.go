package dto

import (
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is submitted by a child paying a merchant.
type CreatePaymentRequest struct {
	MerchantID string          `json:"merchantID" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required,decimal_gt0"`
	Category   string          `json:"category"`
	ProductRef *string         `json:"productRef"`
}

// CreateTransactionRequest covers the movements that are not limit-checked.
type CreateTransactionRequest struct {
	Kind        domain.TransactionKind `json:"kind" binding:"required,oneof=transfer allowance refund"`
	ToAccountID string                 `json:"toAccountID" binding:"required"`
	Amount      decimal.Decimal        `json:"amount" binding:"required,decimal_gt0"`
	RefundOf    *string                `json:"refundOf" binding:"required_if=Kind refund"`
}

// ConfirmTransactionRequest carries the opaque settlement reference.
type ConfirmTransactionRequest struct {
	SettlementRef string `json:"settlementRef"`
}

// CancelTransactionRequest carries an optional cancellation reason.
type CancelTransactionRequest struct {
	Reason string `json:"reason"`
}

// ListTransactionsParams defines query parameters for listing transactions.
type ListTransactionsParams struct {
	Limit     int    `form:"limit,default=20" binding:"min=1,max=100"`
	NextToken string `form:"nextToken"`
}

// TransactionResponse defines the data returned for a transaction.
type TransactionResponse struct {
	TransactionID string                   `json:"transactionID"`
	FromAccountID string                   `json:"fromAccountID"`
	ToAccountID   string                   `json:"toAccountID"`
	Amount        decimal.Decimal          `json:"amount"`
	Kind          domain.TransactionKind   `json:"kind"`
	Status        domain.TransactionStatus `json:"status"`
	Category      string                   `json:"category,omitempty"`
	ProductRef    *string                  `json:"productRef,omitempty"`
	RefundOf      *string                  `json:"refundOf,omitempty"`
	SettlementRef *string                  `json:"settlementRef,omitempty"`
	CancelReason  *string                  `json:"cancelReason,omitempty"`
	FailureReason *string                  `json:"failureReason,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	CompletedAt   *time.Time               `json:"completedAt,omitempty"`
	CancelledAt   *time.Time               `json:"cancelledAt,omitempty"`
}

// ListTransactionsResponse is one page of transactions.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextToken    *string               `json:"nextToken,omitempty"`
}

// ToTransactionResponse converts a domain.Transaction to TransactionResponse DTO.
func ToTransactionResponse(txn *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: txn.TransactionID,
		FromAccountID: txn.FromAccountID,
		ToAccountID:   txn.ToAccountID,
		Amount:        txn.Amount,
		Kind:          txn.Kind,
		Status:        txn.Status,
		Category:      txn.Category,
		ProductRef:    txn.ProductRef,
		RefundOf:      txn.RefundOf,
		SettlementRef: txn.SettlementRef,
		CancelReason:  txn.CancelReason,
		FailureReason: txn.FailureReason,
		CreatedAt:     txn.CreatedAt,
		CompletedAt:   txn.CompletedAt,
		CancelledAt:   txn.CancelledAt,
	}
}

// ToTransactionResponses converts a slice of domain.Transaction to []TransactionResponse.
func ToTransactionResponses(txns []domain.Transaction) []TransactionResponse {
	responses := make([]TransactionResponse, len(txns))
	for i, txn := range txns {
		responses[i] = ToTransactionResponse(&txn)
	}
	return responses
}
