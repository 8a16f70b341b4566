package domain

import "time"

// AccountRole separates business credit accounts from model royalty accounts.
type AccountRole string

const (
	AccountRolePayer AccountRole = "payer"
	AccountRolePayee AccountRole = "payee"
)

// Valid reports whether the role is known.
func (r AccountRole) Valid() bool {
	return r == AccountRolePayer || r == AccountRolePayee
}

// Account holds a balance in integer minor units. Only the ledger writes Balance.
type Account struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Role      AccountRole `json:"role"`
	Balance   int64       `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
