package gift

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/lumastream/coinledger/internal/account"
	"github.com/lumastream/coinledger/internal/ledger"
	"github.com/lumastream/coinledger/internal/models"
	"github.com/lumastream/coinledger/internal/monitoring"
)

// Service errors
var (
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrCreatorNotFound   = errors.New("creator not found")
	ErrSelfGift          = errors.New("cannot gift to yourself")
	ErrInvalidAmount     = ledger.ErrInvalidAmount
	ErrAccountSuspended  = errors.New("account is suspended")
)

// Service delivers coin gifts to creators. Recipients are addressed by
// handle, case-insensitively, and a handle we have never seen is
// auto-provisioned as a creator account before the credit lands.
type Service struct {
	db           *pgxpool.Pool
	accounts     *account.Store
	writer       *ledger.Writer
	walletFunded bool
}

// NewService creates a new gift service. walletFunded selects whether gifts
// spend the sender's wallet or are platform-funded pure credits.
func NewService(db *pgxpool.Pool, accounts *account.Store, writer *ledger.Writer, walletFunded bool) *Service {
	return &Service{
		db:           db,
		accounts:     accounts,
		writer:       writer,
		walletFunded: walletFunded,
	}
}

// SendRequest represents a gift to a creator
type SendRequest struct {
	CreatorHandle string  `json:"creator_handle" binding:"required"`
	Amount        int64   `json:"amount" binding:"required"`
	VideoID       *string `json:"video_id,omitempty"`
}

// SendResponse carries the recorded gift and the creator it landed on
type SendResponse struct {
	Transaction *models.CoinTransaction `json:"transaction"`
	Creator     *models.Account         `json:"creator"`
}

// Send delivers a gift. Wallet-funded gifts debit the sender and credit the
// creator atomically; if the sender cannot cover the amount the whole gift
// aborts and the creator sees nothing.
func (s *Service) Send(ctx context.Context, senderID uuid.UUID, req *SendRequest) (*SendResponse, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	sender, err := s.accounts.Get(ctx, senderID)
	if err != nil {
		return nil, err
	}
	switch sender.Status {
	case models.AccountStatusSuspended:
		return nil, ErrAccountSuspended
	case models.AccountStatusDeleted:
		return nil, account.ErrAccountNotFound
	}

	creator, err := s.resolveCreator(ctx, req.CreatorHandle)
	if err != nil {
		return nil, err
	}
	if creator.ID == senderID {
		return nil, ErrSelfGift
	}
	if creator.Status == models.AccountStatusDeleted {
		return nil, ErrCreatorNotFound
	}

	meta := ledger.Metadata{RelatedVideoID: req.VideoID}

	var entry *models.CoinTransaction
	if s.walletFunded {
		entry, err = s.writer.Transfer(ctx, senderID, creator.ID, req.Amount, models.TransactionTypeGift, meta)
	} else {
		meta.FromAccountID = &senderID
		entry, err = s.writer.Credit(ctx, creator.ID, req.Amount, models.TransactionTypeGift, meta)
	}
	if err != nil {
		return nil, err
	}

	monitoring.RecordGift()

	updated, err := s.accounts.Get(ctx, creator.ID)
	if err != nil {
		// The gift itself committed; return the stale creator row.
		log.Warn().Err(err).Str("creator_id", creator.ID.String()).Msg("Failed to re-read creator after gift")
		updated = creator
	}

	return &SendResponse{Transaction: entry, Creator: updated}, nil
}

// resolveCreator finds or provisions the creator for a handle. Two gifts
// racing to provision the same handle both land on the single row the
// unique handle index lets through.
func (s *Service) resolveCreator(ctx context.Context, handle string) (*models.Account, error) {
	acct, err := s.accounts.GetByHandle(ctx, handle)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, account.ErrAccountNotFound) {
		return nil, err
	}

	acct, err = s.accounts.Create(ctx, handle, models.AccountTypeCreator)
	if err != nil {
		if errors.Is(err, account.ErrHandleConflict) {
			return s.accounts.GetByHandle(ctx, handle)
		}
		return nil, err
	}

	monitoring.RecordAccountProvisioned()
	log.Info().Str("handle", handle).Str("creator_id", acct.ID.String()).Msg("Auto-provisioned creator account")
	return acct, nil
}
