package domain

import (
	"time"
)

// Role is the part an account plays in the wallet.
type Role string

const (
	RoleParent   Role = "parent"
	RoleChild    Role = "child"
	RoleMerchant Role = "merchant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleChild, RoleMerchant:
		return true
	}
	return false
}

// DefaultTimeZone is used when an account does not configure one.
const DefaultTimeZone = "UTC"

// Account represents a wallet participant.
// A child carries exactly one ParentID; parents and merchants carry none.
// The parent's children are derived from ParentID so the link is stored once.
type Account struct {
	AccountID string  `json:"accountID"`
	Name      string  `json:"name"`
	Role      Role    `json:"role"`
	ParentID  *string `json:"parentID,omitempty"`
	TimeZone  string  `json:"timeZone"`
	IsActive  bool    `json:"isActive"`
	AuditFields
}

// IsParentOf reports whether a is the linked parent of child.
func (a Account) IsParentOf(child Account) bool {
	return a.Role == RoleParent &&
		child.Role == RoleChild &&
		child.ParentID != nil &&
		*child.ParentID == a.AccountID
}

// Location resolves the account's fixed time zone, falling back to UTC.
func (a Account) Location() *time.Location {
	if a.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
