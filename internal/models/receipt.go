package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptStatus represents the outcome reported by the payment provider
type ReceiptStatus string

const (
	ReceiptStatusSucceeded ReceiptStatus = "succeeded"
	ReceiptStatusFailed    ReceiptStatus = "failed"
)

// PaymentReceipt records one payment-provider confirmation. The unique
// constraint on PaymentReference is the idempotency key for crediting:
// at most one row per provider reference is ever created, so duplicate
// deliveries of the same event are absorbed as no-ops.
//
// Credited is false for failed payments and for the operational failure
// mode where a receipt was durably recorded but its credit never landed;
// the latter set is what the reconciliation query surfaces.
type PaymentReceipt struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	PaymentReference string          `json:"payment_reference" db:"payment_reference"`
	AccountID        *uuid.UUID      `json:"account_id,omitempty" db:"account_id"`
	CoinsGranted     int64           `json:"coins_granted" db:"coins_granted"`
	FiatAmount       decimal.Decimal `json:"fiat_amount" db:"fiat_amount"`
	Status           ReceiptStatus   `json:"status" db:"status"`
	Credited         bool            `json:"credited" db:"credited"`
	ProcessedAt      time.Time       `json:"processed_at" db:"processed_at"`
}
