package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/lumastream/coinledger/internal/account"
	"github.com/lumastream/coinledger/internal/ledger"
	"github.com/lumastream/coinledger/internal/models"
)

// Service errors
var (
	ErrAccountNotFound = account.ErrAccountNotFound
	ErrAlreadyDeleted  = errors.New("account already deleted")
)

// Service applies moderation penalties to accounts. Suspension freezes an
// account in place; deletion forfeits the residual coin balance with an
// explicit ledger entry so the coins leave the system on the record, not
// silently.
type Service struct {
	db       *pgxpool.Pool
	accounts *account.Store
	writer   *ledger.Writer
}

// NewService creates a new moderation service
func NewService(db *pgxpool.Pool, accounts *account.Store, writer *ledger.Writer) *Service {
	return &Service{
		db:       db,
		accounts: accounts,
		writer:   writer,
	}
}

// Suspend marks an account suspended. Balances are untouched.
func (s *Service) Suspend(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	status := models.AccountStatusSuspended
	acct, err := s.accounts.ApplyDelta(ctx, accountID, account.Delta{Status: &status})
	if err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID.String()).Msg("Account suspended")
	return acct, nil
}

// Reinstate lifts a suspension
func (s *Service) Reinstate(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Status == models.AccountStatusDeleted {
		return nil, ErrAlreadyDeleted
	}

	status := models.AccountStatusActive
	acct, err = s.accounts.ApplyDelta(ctx, accountID, account.Delta{Status: &status})
	if err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID.String()).Msg("Account reinstated")
	return acct, nil
}

// DeleteAccount marks an account deleted and forfeits whatever coins remain
// on it. The forfeit debit and the status change commit together.
func (s *Service) DeleteAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := s.accounts.GetTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Status == models.AccountStatusDeleted {
		return nil, ErrAlreadyDeleted
	}

	residual := acct.WalletBalance
	if acct.IsCreator() {
		residual = acct.WithdrawableCoins
	}
	if residual > 0 {
		if _, err := s.writer.DebitTx(ctx, tx, accountID, residual, models.TransactionTypeForfeit, ledger.Metadata{}); err != nil {
			return nil, err
		}
	}

	status := models.AccountStatusDeleted
	updated, err := s.accounts.ApplyDeltaTx(ctx, tx, accountID, account.Delta{Status: &status})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("account_id", accountID.String()).
		Int64("forfeited_coins", residual).
		Msg("Account deleted")
	return updated, nil
}
