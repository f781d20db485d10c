package models

// Role is the stored form of an account role.
type Role string

// Account is a row of the accounts table.
type Account struct {
	AccountID string  `db:"account_id"`
	Name      string  `db:"name"`
	Role      Role    `db:"role"`
	ParentID  *string `db:"parent_id"` // Nullable, set for children only
	TimeZone  string  `db:"time_zone"`
	IsActive  bool    `db:"is_active"`
	AuditFields
}
