package services

import (
	"context"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
)

// EnforcementSvc is the entry point for creating money movements.
type EnforcementSvc interface {
	// AttemptPayment authorizes, limit-checks and reserves a child's payment.
	AttemptPayment(ctx context.Context, actor domain.Actor, req domain.PaymentRequest) (*domain.Transaction, error)

	// Submit authorizes and records a transfer, allowance or refund.
	Submit(ctx context.Context, actor domain.Actor, req domain.MovementRequest) (*domain.Transaction, error)
}
