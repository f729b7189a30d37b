package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType represents the type of account
type AccountType string

const (
	AccountTypeUser    AccountType = "user"
	AccountTypeCreator AccountType = "creator"
)

// AccountStatus represents the lifecycle status of an account
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDeleted   AccountStatus = "deleted"
)

// Account represents a user or creator account. A creator is a user that
// additionally accumulates a withdrawable balance from gifts received.
// Balance fields are written only through the ledger writer; the account
// store's ApplyDelta is the single mutation path.
type Account struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Handle            string          `json:"handle" db:"handle"`
	AccountType       AccountType     `json:"account_type" db:"account_type"`
	WalletBalance     int64           `json:"wallet_balance" db:"wallet_balance"`
	WithdrawableCoins int64           `json:"withdrawable_coins" db:"withdrawable_coins"`
	TotalCoinsEarned  int64           `json:"total_coins_earned" db:"total_coins_earned"`
	EarnedCash        decimal.Decimal `json:"earned_cash_equivalent" db:"earned_cash"`
	Status            AccountStatus   `json:"status" db:"status"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsCreator reports whether gifts to this account accrue withdrawable coins.
func (a *Account) IsCreator() bool {
	return a.AccountType == AccountTypeCreator
}
