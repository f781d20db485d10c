package mapping

import (
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/models"
)

// ToModelLimitWindow converts a domain LimitWindow to a model LimitWindow
func ToModelLimitWindow(d domain.LimitWindow) models.LimitWindow {
	return models.LimitWindow{
		WindowID:    d.WindowID,
		ChildID:     d.ChildID,
		Kind:        models.WindowKind(d.Kind),
		Ceiling:     d.Ceiling,
		Category:    d.Category,
		StartAt:     d.Start,
		EndAt:       d.End,
		IsActive:    d.IsActive,
		AuditFields: ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainLimitWindow converts a model LimitWindow to a domain LimitWindow
func ToDomainLimitWindow(m models.LimitWindow) domain.LimitWindow {
	return domain.LimitWindow{
		WindowID:    m.WindowID,
		ChildID:     m.ChildID,
		Kind:        domain.WindowKind(m.Kind),
		Ceiling:     m.Ceiling,
		Category:    m.Category,
		Start:       m.StartAt.UTC(),
		End:         utcPtr(m.EndAt),
		IsActive:    m.IsActive,
		AuditFields: ToDomainAuditFields(m.AuditFields),
	}
}

// ToDomainLimitWindowSlice converts a slice of model LimitWindows to domain LimitWindows
func ToDomainLimitWindowSlice(ms []models.LimitWindow) []domain.LimitWindow {
	out := make([]domain.LimitWindow, len(ms))
	for i, m := range ms {
		out[i] = ToDomainLimitWindow(m)
	}
	return out
}
