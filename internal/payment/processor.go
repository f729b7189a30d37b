package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumastream/coinledger/internal/account"
	"github.com/lumastream/coinledger/internal/ledger"
	"github.com/lumastream/coinledger/internal/logging"
	"github.com/lumastream/coinledger/internal/models"
	"github.com/lumastream/coinledger/internal/monitoring"
)

// Processor errors
var (
	ErrPackNotFound    = errors.New("coin pack not found")
	ErrAccountNotFound = account.ErrAccountNotFound
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrInvalidEvent    = errors.New("invalid payment event")
	ErrUnknownOutcome  = errors.New("unknown payment outcome")
)

const seenEventTTL = 24 * time.Hour

// Event is the inbound payment-confirmation event. The metadata attached at
// intent creation comes back on it verbatim.
type Event struct {
	PaymentReference string          `json:"payment_reference"`
	Outcome          string          `json:"outcome"`
	CoinsGranted     int64           `json:"coins_granted"`
	FiatAmount       decimal.Decimal `json:"fiat_amount"`
	AccountID        *uuid.UUID      `json:"account_id,omitempty"`
	AccountHandle    string          `json:"account_handle,omitempty"`
}

// Processor consumes payment-confirmation events and credits purchases.
// Crediting is idempotent: the receipt insert keyed on payment_reference and
// the wallet credit share one database transaction, so a reference is
// credited at most once no matter how often the event is delivered.
type Processor struct {
	db       *pgxpool.Pool
	accounts *account.Store
	writer   *ledger.Writer
	client   *Client
	redis    *redis.Client
}

// NewProcessor creates a new payment event processor. The redis client is
// optional; when present it serves only as a duplicate fast path, the
// receipt table stays authoritative.
func NewProcessor(db *pgxpool.Pool, accounts *account.Store, writer *ledger.Writer, client *Client, rdb *redis.Client) *Processor {
	return &Processor{
		db:       db,
		accounts: accounts,
		writer:   writer,
		client:   client,
		redis:    rdb,
	}
}

// HandleWebhook verifies and processes a raw webhook delivery
func (p *Processor) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !p.client.VerifySignature(payload, signature) {
		return ErrInvalidWebhookSig
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return p.Process(ctx, &evt)
}

// Process applies a single payment event. Duplicate deliveries of an
// already-processed reference succeed without any state change.
func (p *Processor) Process(ctx context.Context, evt *Event) error {
	if evt.PaymentReference == "" {
		return ErrInvalidEvent
	}

	switch evt.Outcome {
	case "succeeded", "failed":
	default:
		return ErrUnknownOutcome
	}

	if p.seenRecently(ctx, evt.PaymentReference) {
		monitoring.RecordDuplicateEvent()
		logging.LogPaymentEvent(evt.PaymentReference, evt.Outcome, "duplicate", 0)
		return nil
	}

	if evt.Outcome == "failed" {
		return p.recordFailed(ctx, evt)
	}

	if evt.CoinsGranted <= 0 {
		return ErrInvalidEvent
	}

	acct, err := p.resolveAccount(ctx, evt)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	duplicate, err := p.creditInTx(ctx, evt, acct)
	if err != nil {
		return err
	}

	if duplicate {
		monitoring.RecordDuplicateEvent()
		logging.LogPaymentEvent(evt.PaymentReference, evt.Outcome, "duplicate", 0)
	} else {
		monitoring.RecordPaymentEvent(evt.Outcome, "processed")
		logging.LogPaymentEvent(evt.PaymentReference, evt.Outcome, "processed", evt.CoinsGranted)
	}

	p.markSeen(ctx, evt.PaymentReference)
	return nil
}

// creditInTx inserts the receipt and credits the wallet atomically. A zero
// row count on the receipt insert means the reference was already processed.
func (p *Processor) creditInTx(ctx context.Context, evt *Event, acct *models.Account) (duplicate bool, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID *uuid.UUID
	credited := false
	if acct != nil {
		accountID = &acct.ID
		credited = true
	}

	result, err := tx.Exec(ctx, `
		INSERT INTO payment_receipts (payment_reference, account_id, coins_granted, fiat_amount, status, credited)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_reference) DO NOTHING
	`, evt.PaymentReference, accountID, evt.CoinsGranted, evt.FiatAmount, models.ReceiptStatusSucceeded, credited)
	if err != nil {
		return false, fmt.Errorf("failed to insert receipt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return true, nil
	}

	if acct == nil {
		// Receipt lands uncredited and shows up in the reconciliation list.
		logging.LogStrandedReceipt(evt.PaymentReference, ErrAccountNotFound)
		monitoring.RecordPaymentEvent(evt.Outcome, "stranded")
		return false, tx.Commit(ctx)
	}

	ref := evt.PaymentReference
	_, err = p.writer.CreditTx(ctx, tx, acct.ID, evt.CoinsGranted, models.TransactionTypePurchase, ledger.Metadata{
		PaymentReference: &ref,
	})
	if err != nil {
		return false, fmt.Errorf("failed to credit purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return false, nil
}

func (p *Processor) recordFailed(ctx context.Context, evt *Event) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID *uuid.UUID
	if acct, err := p.resolveExisting(ctx, evt); err == nil {
		accountID = &acct.ID
	}

	result, err := tx.Exec(ctx, `
		INSERT INTO payment_receipts (payment_reference, account_id, coins_granted, fiat_amount, status, credited)
		VALUES ($1, $2, 0, $3, $4, FALSE)
		ON CONFLICT (payment_reference) DO NOTHING
	`, evt.PaymentReference, accountID, evt.FiatAmount, models.ReceiptStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	if result.RowsAffected() == 0 {
		monitoring.RecordDuplicateEvent()
		logging.LogPaymentEvent(evt.PaymentReference, evt.Outcome, "duplicate", 0)
	} else {
		monitoring.RecordPaymentEvent(evt.Outcome, "processed")
		logging.LogPaymentEvent(evt.PaymentReference, evt.Outcome, "processed", 0)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	p.markSeen(ctx, evt.PaymentReference)
	return nil
}

// resolveAccount finds the target account, provisioning a stub by handle if
// the event references one we have not seen. A losing racer re-fetches the
// row the winner created.
func (p *Processor) resolveAccount(ctx context.Context, evt *Event) (*models.Account, error) {
	acct, err := p.resolveExisting(ctx, evt)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	if evt.AccountHandle == "" {
		return nil, ErrAccountNotFound
	}

	acct, err = p.accounts.Create(ctx, evt.AccountHandle, models.AccountTypeUser)
	if err != nil {
		if errors.Is(err, account.ErrHandleConflict) {
			return p.accounts.GetByHandle(ctx, evt.AccountHandle)
		}
		return nil, err
	}
	monitoring.RecordAccountProvisioned()
	return acct, nil
}

func (p *Processor) resolveExisting(ctx context.Context, evt *Event) (*models.Account, error) {
	if evt.AccountID != nil {
		acct, err := p.accounts.Get(ctx, *evt.AccountID)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
	}
	if evt.AccountHandle != "" {
		return p.accounts.GetByHandle(ctx, evt.AccountHandle)
	}
	return nil, ErrAccountNotFound
}

func (p *Processor) seenRecently(ctx context.Context, ref string) bool {
	if p.redis == nil {
		return false
	}
	n, err := p.redis.Exists(ctx, seenEventKey(ref)).Result()
	if err != nil {
		// Redis being down never blocks processing.
		log.Warn().Err(err).Msg("Duplicate fast-path check failed")
		return false
	}
	return n > 0
}

func (p *Processor) markSeen(ctx context.Context, ref string) {
	if p.redis == nil {
		return
	}
	if err := p.redis.Set(ctx, seenEventKey(ref), 1, seenEventTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to mark event as seen")
	}
}

func seenEventKey(ref string) string {
	return "coinledger:event:" + ref
}

// CreateIntentRequest asks the provider to charge for a coin pack
type CreateIntentRequest struct {
	PackID        string `json:"pack_id" binding:"required"`
	AccountHandle string `json:"account_handle"`
}

// CreateIntentResponse carries the hosted checkout the user is redirected to
type CreateIntentResponse struct {
	PaymentReference string    `json:"payment_reference"`
	ProviderChargeID string    `json:"provider_charge_id"`
	HostedURL        string    `json:"hosted_url"`
	ExpiresAt        time.Time `json:"expires_at"`
	Pack             CoinPack  `json:"pack"`
}

// CreateIntent creates an outbound charge for a coin pack. The price and
// coin grant are re-derived from the pack table, never from the caller.
func (p *Processor) CreateIntent(ctx context.Context, accountID uuid.UUID, returnURL string, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	pack, ok := FindPack(req.PackID)
	if !ok {
		return nil, ErrPackNotFound
	}

	acct, err := p.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	paymentReference := uuid.New().String()
	charge, err := p.client.CreateCharge(ctx, &createChargeRequest{
		Name:        pack.Name,
		Description: pack.Description,
		AmountMinor: pack.PriceCents,
		Currency:    "USD",
		RedirectURL: returnURL,
		Metadata: ChargeMetadata{
			Type:             "coin_purchase",
			CoinsGranted:     pack.Coins,
			AccountID:        acct.ID.String(),
			AccountHandle:    acct.Handle,
			PaymentReference: paymentReference,
		},
	})
	if err != nil {
		return nil, err
	}

	return &CreateIntentResponse{
		PaymentReference: paymentReference,
		ProviderChargeID: charge.ProviderChargeID,
		HostedURL:        charge.HostedURL,
		ExpiresAt:        charge.ExpiresAt,
		Pack:             *pack,
	}, nil
}

// ListUnprocessed returns receipts that were recorded without a credit
// landing, for manual reconciliation
func (p *Processor) ListUnprocessed(ctx context.Context, limit int) ([]models.PaymentReceipt, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, payment_reference, account_id, coins_granted, fiat_amount, status, credited, processed_at
		FROM payment_receipts
		WHERE NOT credited
		ORDER BY processed_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.PaymentReceipt
	for rows.Next() {
		var r models.PaymentReceipt
		if err := rows.Scan(
			&r.ID, &r.PaymentReference, &r.AccountID, &r.CoinsGranted,
			&r.FiatAmount, &r.Status, &r.Credited, &r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// GetReceipt looks up a receipt by its payment reference
func (p *Processor) GetReceipt(ctx context.Context, paymentReference string) (*models.PaymentReceipt, error) {
	var r models.PaymentReceipt
	err := p.db.QueryRow(ctx, `
		SELECT id, payment_reference, account_id, coins_granted, fiat_amount, status, credited, processed_at
		FROM payment_receipts
		WHERE payment_reference = $1
	`, paymentReference).Scan(
		&r.ID, &r.PaymentReference, &r.AccountID, &r.CoinsGranted,
		&r.FiatAmount, &r.Status, &r.Credited, &r.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &r, nil
}
