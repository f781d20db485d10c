package domain

import "github.com/shopspring/decimal"

// PaymentRequest asks to move money from a child to a merchant, subject to limits.
type PaymentRequest struct {
	ChildID    string
	MerchantID string
	Amount     decimal.Decimal
	Category   string
	ProductRef *string
}

// MovementRequest asks for a transfer, allowance or refund between two accounts.
type MovementRequest struct {
	FromAccountID string
	ToAccountID   string
	Kind          TransactionKind
	Amount        decimal.Decimal
	RefundOf      *string
}
