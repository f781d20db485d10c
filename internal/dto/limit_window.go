package dto

import (
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateWindowRequest defines a new spending limit for a child.
// Recurring kinds use Start (defaults to now) and an optional End.
// Discretionary windows take either Date (YYYY-MM-DD, in the child's zone) or Start and End.
type CreateWindowRequest struct {
	Kind     domain.WindowKind `json:"kind" binding:"required,oneof=daily weekly monthly discretionary"`
	Ceiling  decimal.Decimal   `json:"ceiling" binding:"required,decimal_gt0"`
	Category string            `json:"category"`
	Start    *time.Time        `json:"start"`
	End      *time.Time        `json:"end"`
	Date     string            `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// UpdateWindowRequest defines the metadata a parent may change on a window.
// Pointers distinguish "not provided" from zero values.
type UpdateWindowRequest struct {
	Ceiling  *decimal.Decimal `json:"ceiling" binding:"omitempty,decimal_gt0"`
	Category *string          `json:"category"`
	IsActive *bool            `json:"isActive"`
	Start    *time.Time       `json:"start"`
	End      *time.Time       `json:"end"`
	ClearEnd bool             `json:"clearEnd"` // Makes a recurring window open-ended
}

// ResolveWindowsParams selects the instant and category for an applicable-window preview.
type ResolveWindowsParams struct {
	At       *time.Time `form:"at" time_format:"2006-01-02T15:04:05Z07:00"`
	Category string     `form:"category"`
}

// WindowResponse defines the data returned for a window definition.
type WindowResponse struct {
	WindowID      string            `json:"windowID"`
	ChildID       string            `json:"childID"`
	Kind          domain.WindowKind `json:"kind"`
	Ceiling       decimal.Decimal   `json:"ceiling"`
	Category      string            `json:"category,omitempty"`
	Start         time.Time         `json:"start"`
	End           *time.Time        `json:"end,omitempty"`
	IsActive      bool              `json:"isActive"`
	CreatedAt     time.Time         `json:"createdAt"`
	CreatedBy     string            `json:"createdBy"`
	LastUpdatedAt time.Time         `json:"lastUpdatedAt"`
	LastUpdatedBy string            `json:"lastUpdatedBy"`
}

// WindowUsageResponse is a window resolved for one period.
type WindowUsageResponse struct {
	Window      WindowResponse  `json:"window"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`
	Consumed    decimal.Decimal `json:"consumed"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// DeleteWindowResponse reports whether the window was removed or only deactivated.
type DeleteWindowResponse struct {
	WindowID string `json:"windowID"`
	Deleted  bool   `json:"deleted"`
}

// ToWindowResponse converts a domain.LimitWindow to WindowResponse DTO
func ToWindowResponse(w *domain.LimitWindow) WindowResponse {
	return WindowResponse{
		WindowID:      w.WindowID,
		ChildID:       w.ChildID,
		Kind:          w.Kind,
		Ceiling:       w.Ceiling,
		Category:      w.Category,
		Start:         w.Start,
		End:           w.End,
		IsActive:      w.IsActive,
		CreatedAt:     w.CreatedAt,
		CreatedBy:     w.CreatedBy,
		LastUpdatedAt: w.LastUpdatedAt,
		LastUpdatedBy: w.LastUpdatedBy,
	}
}

// ToWindowResponses converts a slice of windows.
func ToWindowResponses(windows []domain.LimitWindow) []WindowResponse {
	res := make([]WindowResponse, len(windows))
	for i, w := range windows {
		res[i] = ToWindowResponse(&w)
	}
	return res
}

// ToWindowUsageResponses converts resolved windows, computing the remaining capacity.
func ToWindowUsageResponses(usages []domain.WindowUsage) []WindowUsageResponse {
	res := make([]WindowUsageResponse, len(usages))
	for i, u := range usages {
		res[i] = WindowUsageResponse{
			Window:      ToWindowResponse(&u.Window),
			PeriodStart: u.Period.Start,
			PeriodEnd:   u.Period.End,
			Consumed:    u.Consumed,
			Remaining:   u.RemainingCapacity(),
		}
	}
	return res
}
