package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WindowKind is the stored form of a limit window kind.
type WindowKind string

// LimitWindow is a row of the limit_windows table.
type LimitWindow struct {
	WindowID string          `db:"window_id"`
	ChildID  string          `db:"child_id"`
	Kind     WindowKind      `db:"kind"`
	Ceiling  decimal.Decimal `db:"ceiling"`
	Category string          `db:"category"` // Empty string means every category
	StartAt  time.Time       `db:"start_at"`
	EndAt    *time.Time      `db:"end_at"` // Nullable for open-ended recurring windows
	IsActive bool            `db:"is_active"`
	AuditFields
}

// WindowUsage is a row of the window_usage table: consumption of one window period.
type WindowUsage struct {
	WindowID    string          `db:"window_id"`
	PeriodStart time.Time       `db:"period_start"`
	Consumed    decimal.Decimal `db:"consumed"`
	UpdatedAt   time.Time       `db:"updated_at"`
}
