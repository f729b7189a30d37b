package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of ledger entry
type TransactionType string

const (
	// TransactionTypePurchase credits purchased coins to a wallet.
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeGift moves coins from a sender (or the platform) to a creator.
	TransactionTypeGift TransactionType = "gift"
	// TransactionTypeRedemption escrows coins out of a creator's withdrawable balance.
	TransactionTypeRedemption TransactionType = "redemption"
	// TransactionTypeRedemptionReversal restores coins after a rejected redemption.
	TransactionTypeRedemptionReversal TransactionType = "redemption_reversal"
	// TransactionTypeForfeit explicitly voids the residual balance of a deleted account.
	TransactionTypeForfeit TransactionType = "forfeit"
)

// CoinTransaction is an append-only ledger entry. Rows are never updated or
// deleted; balance_before/balance_after snapshot the mutated balance field so
// reconciliation can verify that no update was lost.
type CoinTransaction struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	TxType           TransactionType `json:"tx_type" db:"tx_type"`
	FromAccountID    *uuid.UUID      `json:"from_account_id,omitempty" db:"from_account_id"`
	ToAccountID      *uuid.UUID      `json:"to_account_id,omitempty" db:"to_account_id"`
	Amount           int64           `json:"amount" db:"amount"`
	RelatedVideoID   *string         `json:"related_video_id,omitempty" db:"related_video_id"`
	PaymentReference *string         `json:"payment_reference,omitempty" db:"payment_reference"`
	BalanceBefore    int64           `json:"balance_before" db:"balance_before"`
	BalanceAfter     int64           `json:"balance_after" db:"balance_after"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}
