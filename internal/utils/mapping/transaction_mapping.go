package mapping

import (
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/models"
)

// ToModelTransaction converts a domain Transaction to a model Transaction
func ToModelTransaction(d domain.Transaction) models.Transaction {
	return models.Transaction{
		TransactionID: d.TransactionID,
		FromAccountID: d.FromAccountID,
		ToAccountID:   d.ToAccountID,
		Amount:        d.Amount,
		Kind:          models.TransactionKind(d.Kind),
		Status:        models.TransactionStatus(d.Status),
		Category:      d.Category,
		ProductRef:    d.ProductRef,
		RefundOf:      d.RefundOf,
		SettlementRef: d.SettlementRef,
		CancelReason:  d.CancelReason,
		FailureReason: d.FailureReason,
		CompletedAt:   d.CompletedAt,
		CancelledAt:   d.CancelledAt,
		AuditFields:   ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainTransaction converts a model Transaction to a domain Transaction
func ToDomainTransaction(m models.Transaction) domain.Transaction {
	return domain.Transaction{
		TransactionID: m.TransactionID,
		FromAccountID: m.FromAccountID,
		ToAccountID:   m.ToAccountID,
		Amount:        m.Amount,
		Kind:          domain.TransactionKind(m.Kind),
		Status:        domain.TransactionStatus(m.Status),
		Category:      m.Category,
		ProductRef:    m.ProductRef,
		RefundOf:      m.RefundOf,
		SettlementRef: m.SettlementRef,
		CancelReason:  m.CancelReason,
		FailureReason: m.FailureReason,
		CompletedAt:   utcPtr(m.CompletedAt),
		CancelledAt:   utcPtr(m.CancelledAt),
		AuditFields:   ToDomainAuditFields(m.AuditFields),
	}
}

// ToDomainTransactionSlice converts a slice of model Transactions to domain Transactions
func ToDomainTransactionSlice(ms []models.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(ms))
	for i, m := range ms {
		out[i] = ToDomainTransaction(m)
	}
	return out
}

// ToModelReservation converts a domain Reservation to a model Reservation
func ToModelReservation(d domain.Reservation) models.Reservation {
	return models.Reservation{
		TransactionID: d.TransactionID,
		WindowID:      d.WindowID,
		PeriodStart:   d.PeriodStart,
		Amount:        d.Amount,
	}
}

// ToDomainReservation converts a model Reservation to a domain Reservation
func ToDomainReservation(m models.Reservation) domain.Reservation {
	return domain.Reservation{
		TransactionID: m.TransactionID,
		WindowID:      m.WindowID,
		PeriodStart:   m.PeriodStart.UTC(),
		Amount:        m.Amount,
	}
}
