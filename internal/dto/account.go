package dto

import (
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
)

// RegisterAccountRequest defines the data needed to register a parent or merchant.
type RegisterAccountRequest struct {
	Name     string      `json:"name" binding:"required"`
	Role     domain.Role `json:"role" binding:"required,oneof=parent merchant"`
	TimeZone string      `json:"timeZone" binding:"omitempty,timezone"`
}

// CreateChildRequest defines the data a parent supplies to add a child account.
type CreateChildRequest struct {
	Name     string `json:"name" binding:"required"`
	TimeZone string `json:"timeZone" binding:"omitempty,timezone"` // Defaults to the parent's zone
}

// AccountResponse defines the data returned for an account.
type AccountResponse struct {
	AccountID     string      `json:"accountID"`
	Name          string      `json:"name"`
	Role          domain.Role `json:"role"`
	ParentID      string      `json:"parentID,omitempty"`
	TimeZone      string      `json:"timeZone"`
	IsActive      bool        `json:"isActive"`
	CreatedAt     time.Time   `json:"createdAt"`
	CreatedBy     string      `json:"createdBy"`
	LastUpdatedAt time.Time   `json:"lastUpdatedAt"`
	LastUpdatedBy string      `json:"lastUpdatedBy"`
}

// ToAccountResponse converts a domain.Account to AccountResponse DTO
func ToAccountResponse(acc *domain.Account) AccountResponse {
	res := AccountResponse{
		AccountID:     acc.AccountID,
		Name:          acc.Name,
		Role:          acc.Role,
		TimeZone:      acc.TimeZone,
		IsActive:      acc.IsActive,
		CreatedAt:     acc.CreatedAt,
		CreatedBy:     acc.CreatedBy,
		LastUpdatedAt: acc.LastUpdatedAt,
		LastUpdatedBy: acc.LastUpdatedBy,
	}
	if acc.ParentID != nil {
		res.ParentID = *acc.ParentID
	}
	return res
}

// ToListAccountResponse converts a slice of domain.Account to a slice of AccountResponse DTOs
func ToListAccountResponse(accounts []domain.Account) []AccountResponse {
	res := make([]AccountResponse, len(accounts))
	for i, acc := range accounts {
		res[i] = ToAccountResponse(&acc)
	}
	return res
}
