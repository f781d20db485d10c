package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditFields holds standard audit information for domain entities.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"` // Account ID of the actor
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"` // Account ID of the actor
	Version       int64     `json:"version"`
}

// Actor is the authenticated caller as supplied by the identity middleware.
type Actor struct {
	AccountID string
	Role      Role
}

// Precision is the resolution of every instant handled by the ledger.
// It matches the microsecond resolution of PostgreSQL timestamps.
const Precision = time.Microsecond

// Normalize truncates t to the ledger's precision.
func Normalize(t time.Time) time.Time {
	return t.Truncate(Precision)
}

// AmountScale is the number of decimal places stored for money, matching NUMERIC(19, 4).
const AmountScale = 4

// ValidAmountScale reports whether d is representable without rounding.
func ValidAmountScale(d decimal.Decimal) bool {
	return d.Truncate(AmountScale).Equal(d)
}
