package services

import (
	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AuthorizationRequest is everything the decision table looks at.
// RefundOf and RefundedSoFar are only consulted for refunds.
type AuthorizationRequest struct {
	ActorRole     domain.Role
	From          domain.Account
	To            domain.Account
	Kind          domain.TransactionKind
	Amount        decimal.Decimal
	RefundOf      *domain.Transaction
	RefundedSoFar decimal.Decimal
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  apperrors.DenyReason
}

// Allow is the positive Decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative Decision.
func Deny(reason apperrors.DenyReason) Decision {
	return Decision{Reason: reason}
}

// Authorize decides whether a money movement may be recorded. It has no side effects.
// The kind rule is checked first; both accounts must then be active.
func Authorize(req AuthorizationRequest) Decision {
	var d Decision
	switch req.Kind {
	case domain.KindTransfer, domain.KindAllowance:
		d = authorizeParentToChild(req)
	case domain.KindPayment:
		d = authorizePayment(req)
	case domain.KindRefund:
		d = authorizeRefund(req)
	default:
		return Deny(apperrors.ReasonUnsupportedKind)
	}
	if !d.Allowed {
		return d
	}
	if !req.From.IsActive || !req.To.IsActive {
		return Deny(apperrors.ReasonAccountInactive)
	}
	return Allow
}

func authorizeParentToChild(req AuthorizationRequest) Decision {
	if req.ActorRole != domain.RoleParent || !req.From.IsParentOf(req.To) {
		return Deny(apperrors.ReasonNotYourChild)
	}
	return Allow
}

func authorizePayment(req AuthorizationRequest) Decision {
	if req.ActorRole != domain.RoleChild || req.From.Role != domain.RoleChild || req.To.Role != domain.RoleMerchant {
		return Deny(apperrors.ReasonInvalidRecipientRole)
	}
	return Allow
}

func authorizeRefund(req AuthorizationRequest) Decision {
	if req.ActorRole != domain.RoleMerchant || req.From.Role != domain.RoleMerchant {
		return Deny(apperrors.ReasonNoMatchingPayment)
	}
	original := req.RefundOf
	if original == nil ||
		req.To.Role != domain.RoleChild ||
		original.Kind != domain.KindPayment ||
		original.Status != domain.StatusCompleted ||
		original.ToAccountID != req.From.AccountID ||
		original.FromAccountID != req.To.AccountID {
		return Deny(apperrors.ReasonNoMatchingPayment)
	}
	if req.RefundedSoFar.Add(req.Amount).GreaterThan(original.Amount) {
		return Deny(apperrors.ReasonRefundExceedsOriginal)
	}
	return Allow
}
