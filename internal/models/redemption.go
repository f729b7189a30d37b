package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedemptionStatus represents the status of a redemption request
type RedemptionStatus string

const (
	RedemptionStatusPending  RedemptionStatus = "pending"
	RedemptionStatusApproved RedemptionStatus = "approved"
	RedemptionStatusRejected RedemptionStatus = "rejected"
)

// RedemptionRequest is a creator's request to convert withdrawable coins
// into a cash payout. The coins are escrowed (debited) the moment the
// request is filed; approval leaves the debit in place, rejection restores
// it. A resolved request is terminal.
type RedemptionRequest struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	CreatorID   uuid.UUID        `json:"creator_id" db:"creator_id"`
	AmountCoins int64            `json:"amount_coins" db:"amount_coins"`
	AmountCash  decimal.Decimal  `json:"amount_cash_equivalent" db:"amount_cash"`
	Status      RedemptionStatus `json:"status" db:"status"`
	RequestedAt time.Time        `json:"requested_at" db:"requested_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy  *string          `json:"resolved_by,omitempty" db:"resolved_by"`
}
