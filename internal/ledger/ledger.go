package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lumastream/coinledger/internal/account"
	"github.com/lumastream/coinledger/internal/logging"
	"github.com/lumastream/coinledger/internal/models"
	"github.com/lumastream/coinledger/internal/monitoring"
)

// Writer errors
var (
	ErrInsufficientFunds = errors.New("insufficient coin balance")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAccountNotFound   = account.ErrAccountNotFound
)

// Metadata carries the provenance fields recorded alongside a ledger entry
type Metadata struct {
	FromAccountID    *uuid.UUID
	RelatedVideoID   *string
	PaymentReference *string
}

// Writer is the single mutation path for coin balances. Every credit and
// debit updates the account row and appends a coin_transactions row in the
// same database transaction; balances are never written anywhere else.
type Writer struct {
	db               *pgxpool.Pool
	accounts         *account.Store
	coinsPerFiatUnit int64
}

// NewWriter creates a new ledger writer
func NewWriter(db *pgxpool.Pool, accounts *account.Store, coinsPerFiatUnit int64) *Writer {
	return &Writer{
		db:               db,
		accounts:         accounts,
		coinsPerFiatUnit: coinsPerFiatUnit,
	}
}

// Credit adds coins to an account in its own transaction
func (w *Writer) Credit(ctx context.Context, accountID uuid.UUID, amount int64, txType models.TransactionType, meta Metadata) (*models.CoinTransaction, error) {
	return w.inTx(ctx, func(tx pgx.Tx) (*models.CoinTransaction, error) {
		return w.CreditTx(ctx, tx, accountID, amount, txType, meta)
	})
}

// Debit removes coins from an account in its own transaction
func (w *Writer) Debit(ctx context.Context, accountID uuid.UUID, amount int64, txType models.TransactionType, meta Metadata) (*models.CoinTransaction, error) {
	return w.inTx(ctx, func(tx pgx.Tx) (*models.CoinTransaction, error) {
		return w.DebitTx(ctx, tx, accountID, amount, txType, meta)
	})
}

func (w *Writer) inTx(ctx context.Context, fn func(tx pgx.Tx) (*models.CoinTransaction, error)) (*models.CoinTransaction, error) {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := fn(tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// CreditTx adds coins to an account inside an existing transaction. The
// target row is locked before the update; creators receive credits into
// withdrawable_coins, regular users into wallet_balance.
func (w *Writer) CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, txType models.TransactionType, meta Metadata) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	acct, err := w.accounts.GetTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	delta, before := creditDelta(acct, amount, txType, w.coinsPerFiatUnit)
	updated, err := w.accounts.ApplyDeltaTx(ctx, tx, accountID, delta)
	if err != nil {
		return nil, err
	}

	after := mutatedBalance(updated, acct.AccountType)
	entry, err := w.appendTx(ctx, tx, txType, meta.FromAccountID, &accountID, amount, before, after, meta)
	if err != nil {
		return nil, err
	}

	logging.LogLedgerEntry(string(txType), accountID.String(), amount, after)
	monitoring.RecordCoinsCredited(string(txType), amount)
	return entry, nil
}

// DebitTx removes coins from an account inside an existing transaction. The
// row is locked first; if the mutated balance cannot cover the amount the
// transaction is left untouched and ErrInsufficientFunds is returned.
func (w *Writer) DebitTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, txType models.TransactionType, meta Metadata) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	acct, err := w.accounts.GetTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	before := mutatedBalance(acct, acct.AccountType)
	if before < amount {
		return nil, ErrInsufficientFunds
	}

	delta := debitDelta(acct, amount)
	updated, err := w.accounts.ApplyDeltaTx(ctx, tx, accountID, delta)
	if err != nil {
		if errors.Is(err, account.ErrNegativeBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	after := mutatedBalance(updated, acct.AccountType)
	entry, err := w.appendTx(ctx, tx, txType, &accountID, nil, amount, before, after, meta)
	if err != nil {
		return nil, err
	}

	logging.LogLedgerEntry(string(txType), accountID.String(), -amount, after)
	monitoring.RecordCoinsDebited(string(txType), amount)
	return entry, nil
}

// Transfer moves coins from one account to another atomically, recording a
// single ledger entry. Both rows are locked up front in ascending ID order
// so concurrent transfers touching the same pair cannot deadlock.
func (w *Writer) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount int64, txType models.TransactionType, meta Metadata) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, fmt.Errorf("cannot transfer to the same account")
	}

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, []uuid.UUID{fromID, toID})
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	var locked int
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan locked account: %w", err)
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	if locked != 2 {
		return nil, ErrAccountNotFound
	}

	from, err := w.accounts.GetTx(ctx, tx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := w.accounts.GetTx(ctx, tx, toID)
	if err != nil {
		return nil, err
	}

	senderBefore := mutatedBalance(from, from.AccountType)
	if senderBefore < amount {
		return nil, ErrInsufficientFunds
	}

	if _, err := w.accounts.ApplyDeltaTx(ctx, tx, fromID, debitDelta(from, amount)); err != nil {
		if errors.Is(err, account.ErrNegativeBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	delta, receiverBefore := creditDelta(to, amount, txType, w.coinsPerFiatUnit)
	receiver, err := w.accounts.ApplyDeltaTx(ctx, tx, toID, delta)
	if err != nil {
		return nil, err
	}

	receiverAfter := mutatedBalance(receiver, to.AccountType)
	entry, err := w.appendTx(ctx, tx, txType, &fromID, &toID, amount, receiverBefore, receiverAfter, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logging.LogLedgerEntry(string(txType), toID.String(), amount, receiverAfter)
	monitoring.RecordCoinsDebited(string(txType), amount)
	monitoring.RecordCoinsCredited(string(txType), amount)
	return entry, nil
}

func (w *Writer) appendTx(ctx context.Context, tx pgx.Tx, txType models.TransactionType, from, to *uuid.UUID, amount, before, after int64, meta Metadata) (*models.CoinTransaction, error) {
	var entry models.CoinTransaction
	err := tx.QueryRow(ctx, `
		INSERT INTO coin_transactions (
			tx_type, from_account_id, to_account_id, amount,
			related_video_id, payment_reference, balance_before, balance_after
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, tx_type, from_account_id, to_account_id, amount,
			related_video_id, payment_reference, balance_before, balance_after, created_at
	`, txType, from, to, amount, meta.RelatedVideoID, meta.PaymentReference, before, after).Scan(
		&entry.ID, &entry.TxType, &entry.FromAccountID, &entry.ToAccountID, &entry.Amount,
		&entry.RelatedVideoID, &entry.PaymentReference, &entry.BalanceBefore, &entry.BalanceAfter, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return &entry, nil
}

// creditDelta selects the balance fields a credit touches. Gifts and
// purchases landing on a creator grow the lifetime earnings counters; a
// redemption reversal only restores the withdrawable balance it escrowed.
func creditDelta(acct *models.Account, amount int64, txType models.TransactionType, coinsPerFiatUnit int64) (account.Delta, int64) {
	if !acct.IsCreator() {
		return account.Delta{WalletCoins: amount}, acct.WalletBalance
	}

	delta := account.Delta{WithdrawableCoins: amount}
	if txType != models.TransactionTypeRedemptionReversal {
		delta.TotalCoinsEarned = amount
		delta.EarnedCash = models.CashEquivalent(amount, coinsPerFiatUnit)
	}
	return delta, acct.WithdrawableCoins
}

// debitDelta drains the account's spendable balance. Users spend from the
// wallet; creators spend from withdrawable coins.
func debitDelta(acct *models.Account, amount int64) account.Delta {
	if acct.IsCreator() {
		return account.Delta{WithdrawableCoins: -amount}
	}
	return account.Delta{WalletCoins: -amount}
}

func mutatedBalance(acct *models.Account, accountType models.AccountType) int64 {
	if accountType == models.AccountTypeCreator {
		return acct.WithdrawableCoins
	}
	return acct.WalletBalance
}

// History returns an account's ledger entries, newest first
func (w *Writer) History(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.CoinTransaction, error) {
	rows, err := w.db.Query(ctx, `
		SELECT id, tx_type, from_account_id, to_account_id, amount,
			related_video_id, payment_reference, balance_before, balance_after, created_at
		FROM coin_transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	defer rows.Close()

	var entries []models.CoinTransaction
	for rows.Next() {
		var e models.CoinTransaction
		if err := rows.Scan(
			&e.ID, &e.TxType, &e.FromAccountID, &e.ToAccountID, &e.Amount,
			&e.RelatedVideoID, &e.PaymentReference, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreatorFlow sums a creator's inbound gifts, redemption debits, reversal
// credits and moderation forfeits. The invariant withdrawable = gifts -
// redemptions + reversals - forfeits holds for every creator at all times.
type CreatorFlow struct {
	GiftsIn    int64           `json:"gifts_in"`
	Redeemed   int64           `json:"redeemed"`
	Reversed   int64           `json:"reversed"`
	Forfeited  int64           `json:"forfeited"`
	CashEarned decimal.Decimal `json:"cash_earned"`
}

// SumCreatorFlow computes the ledger-derived flow totals for a creator
func (w *Writer) SumCreatorFlow(ctx context.Context, creatorID uuid.UUID) (*CreatorFlow, error) {
	var flow CreatorFlow
	err := w.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE to_account_id = $1 AND tx_type IN ('gift', 'purchase')), 0),
			COALESCE(SUM(amount) FILTER (WHERE from_account_id = $1 AND tx_type = 'redemption'), 0),
			COALESCE(SUM(amount) FILTER (WHERE to_account_id = $1 AND tx_type = 'redemption_reversal'), 0),
			COALESCE(SUM(amount) FILTER (WHERE from_account_id = $1 AND tx_type = 'forfeit'), 0)
		FROM coin_transactions
		WHERE from_account_id = $1 OR to_account_id = $1
	`, creatorID).Scan(&flow.GiftsIn, &flow.Redeemed, &flow.Reversed, &flow.Forfeited)
	if err != nil {
		return nil, fmt.Errorf("failed to sum creator flow: %w", err)
	}
	flow.CashEarned = models.CashEquivalent(flow.GiftsIn, w.coinsPerFiatUnit)
	return &flow, nil
}
