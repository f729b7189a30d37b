package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lumastream/coinledger/internal/account"
	"github.com/lumastream/coinledger/internal/ledger"
	"github.com/lumastream/coinledger/internal/logging"
	"github.com/lumastream/coinledger/internal/models"
	"github.com/lumastream/coinledger/internal/monitoring"
)

// Service errors
var (
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrBelowMinimum      = errors.New("redemption amount below minimum")
	ErrNotFound          = errors.New("redemption request not found")
	ErrAlreadyResolved   = errors.New("redemption request already resolved")
	ErrNotCreator        = errors.New("account is not a creator")
	ErrCreatorNotFound   = account.ErrAccountNotFound
	ErrInvalidResolution = errors.New("resolution must be approved or rejected")
	ErrAccountSuspended  = errors.New("account is suspended")
)

// Service runs the cash-redemption workflow. Requesting escrows the coins
// out of the creator's withdrawable balance immediately; rejection credits
// them back, approval leaves the escrowed coins gone for good.
type Service struct {
	db                 *pgxpool.Pool
	accounts           *account.Store
	writer             *ledger.Writer
	minRedemptionCoins int64
	coinsPerFiatUnit   int64
}

// NewService creates a new redemption service
func NewService(db *pgxpool.Pool, accounts *account.Store, writer *ledger.Writer, minRedemptionCoins, coinsPerFiatUnit int64) *Service {
	return &Service{
		db:                 db,
		accounts:           accounts,
		writer:             writer,
		minRedemptionCoins: minRedemptionCoins,
		coinsPerFiatUnit:   coinsPerFiatUnit,
	}
}

const redemptionColumns = `
	id, creator_id, amount_coins, amount_cash, status, requested_at, resolved_at, resolved_by`

func scanRedemption(row pgx.Row) (*models.RedemptionRequest, error) {
	var r models.RedemptionRequest
	err := row.Scan(
		&r.ID, &r.CreatorID, &r.AmountCoins, &r.AmountCash,
		&r.Status, &r.RequestedAt, &r.ResolvedAt, &r.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan redemption: %w", err)
	}
	return &r, nil
}

// Request opens a redemption for a creator. The escrow debit and the
// pending row share one transaction, so either both land or neither does.
func (s *Service) Request(ctx context.Context, creatorID uuid.UUID, amountCoins int64) (*models.RedemptionRequest, error) {
	if amountCoins < s.minRedemptionCoins {
		return nil, ErrBelowMinimum
	}

	acct, err := s.accounts.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !acct.IsCreator() {
		return nil, ErrNotCreator
	}
	switch acct.Status {
	case models.AccountStatusSuspended:
		return nil, ErrAccountSuspended
	case models.AccountStatusDeleted:
		return nil, ErrCreatorNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.writer.DebitTx(ctx, tx, creatorID, amountCoins, models.TransactionTypeRedemption, ledger.Metadata{}); err != nil {
		return nil, err
	}

	amountCash := models.CashEquivalent(amountCoins, s.coinsPerFiatUnit)
	row := tx.QueryRow(ctx, `
		INSERT INTO redemption_requests (creator_id, amount_coins, amount_cash, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+redemptionColumns+`
	`, creatorID, amountCoins, amountCash, models.RedemptionStatusPending)

	req, err := scanRedemption(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logging.LogRedemption(req.ID.String(), creatorID.String(), string(req.Status), "", amountCoins)
	return req, nil
}

// Resolve settles a pending request. The row is locked and its status
// checked under that lock, so concurrent resolutions of the same request
// see exactly one winner; the loser gets ErrAlreadyResolved.
func (s *Service) Resolve(ctx context.Context, requestID uuid.UUID, status models.RedemptionStatus, resolvedBy string) (*models.RedemptionRequest, error) {
	if status != models.RedemptionStatusApproved && status != models.RedemptionStatusRejected {
		return nil, ErrInvalidResolution
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemption_requests
		WHERE id = $1
		FOR UPDATE
	`, requestID)
	req, err := scanRedemption(row)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RedemptionStatusPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	row = tx.QueryRow(ctx, `
		UPDATE redemption_requests
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1
		RETURNING `+redemptionColumns+`
	`, requestID, status, now, resolvedBy)
	resolved, err := scanRedemption(row)
	if err != nil {
		return nil, err
	}

	if status == models.RedemptionStatusRejected {
		// Give the escrowed coins back.
		_, err := s.writer.CreditTx(ctx, tx, req.CreatorID, req.AmountCoins, models.TransactionTypeRedemptionReversal, ledger.Metadata{})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	monitoring.RecordRedemptionResolved(string(status))
	logging.LogRedemption(requestID.String(), req.CreatorID.String(), string(status), resolvedBy, req.AmountCoins)
	return resolved, nil
}

// Get retrieves a redemption request by ID
func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*models.RedemptionRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemption_requests
		WHERE id = $1
	`, requestID)
	return scanRedemption(row)
}

// ListByCreator returns a creator's redemption requests, newest first
func (s *Service) ListByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]models.RedemptionRequest, error) {
	return s.list(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemption_requests
		WHERE creator_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`, creatorID, limit, offset)
}

// ListByStatus returns requests in a given state, oldest first so admins
// work the queue in arrival order
func (s *Service) ListByStatus(ctx context.Context, status models.RedemptionStatus, limit, offset int) ([]models.RedemptionRequest, error) {
	return s.list(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemption_requests
		WHERE status = $1
		ORDER BY requested_at
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]models.RedemptionRequest, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	var requests []models.RedemptionRequest
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// EarningsInfo summarizes a creator's monetization state
type EarningsInfo struct {
	WithdrawableCoins  int64           `json:"withdrawable_coins"`
	TotalCoinsEarned   int64           `json:"total_coins_earned"`
	EarnedCash         decimal.Decimal `json:"earned_cash"`
	PendingRedemptions int64           `json:"pending_redemptions"`
	MinRedemptionCoins int64           `json:"min_redemption_coins"`
}

// GetEarningsInfo retrieves a creator's earnings summary
func (s *Service) GetEarningsInfo(ctx context.Context, creatorID uuid.UUID) (*EarningsInfo, error) {
	acct, err := s.accounts.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !acct.IsCreator() {
		return nil, ErrNotCreator
	}

	var pending int64
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_coins), 0)
		FROM redemption_requests
		WHERE creator_id = $1 AND status = $2
	`, creatorID, models.RedemptionStatusPending).Scan(&pending)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending redemptions: %w", err)
	}

	return &EarningsInfo{
		WithdrawableCoins:  acct.WithdrawableCoins,
		TotalCoinsEarned:   acct.TotalCoinsEarned,
		EarnedCash:         acct.EarnedCash,
		PendingRedemptions: pending,
		MinRedemptionCoins: s.minRedemptionCoins,
	}, nil
}
