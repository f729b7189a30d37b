package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lumastream/coinledger/internal/models"
)

// Store errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrHandleConflict  = errors.New("handle already taken")
	ErrNegativeBalance = errors.New("delta would drive a balance negative")
)

// Store handles account persistence. All balance mutations go through
// ApplyDelta or ApplyDeltaTx; nothing else writes the balance columns.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new account store
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const accountColumns = `
	id, handle, account_type, wallet_balance, withdrawable_coins,
	total_coins_earned, earned_cash, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Handle, &a.AccountType, &a.WalletBalance, &a.WithdrawableCoins,
		&a.TotalCoinsEarned, &a.EarnedCash, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// Get retrieves an account by ID
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row)
}

// GetByHandle retrieves an account by handle, case-insensitively
func (s *Store) GetByHandle(ctx context.Context, handle string) (*models.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE LOWER(handle) = LOWER($1)
	`, handle)
	return scanAccount(row)
}

// GetTx retrieves an account inside an existing transaction, locking the row
// for the remainder of that transaction
func (s *Store) GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAccount(row)
}

// Create inserts a new account. A duplicate handle (any casing) returns
// ErrHandleConflict so callers can re-fetch the winner of a provisioning race.
func (s *Store) Create(ctx context.Context, handle string, accountType models.AccountType) (*models.Account, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (handle, account_type)
		VALUES ($1, $2)
		RETURNING `+accountColumns+`
	`, handle, accountType)

	a, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrHandleConflict
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return a, nil
}

// Delta describes a single atomic change to an account's balances and status.
// Zero-valued fields leave their column untouched.
type Delta struct {
	WalletCoins       int64
	WithdrawableCoins int64
	TotalCoinsEarned  int64
	EarnedCash        decimal.Decimal
	Status            *models.AccountStatus
}

// ApplyDelta applies a balance delta atomically in its own transaction
func (s *Store) ApplyDelta(ctx context.Context, id uuid.UUID, delta Delta) (*models.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := s.ApplyDeltaTx(ctx, tx, id, delta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return a, nil
}

// ApplyDeltaTx applies a balance delta inside an existing transaction. The
// WHERE clause refuses updates that would take any coin balance below zero,
// so a zero-row result maps to ErrNegativeBalance and nothing is written.
func (s *Store) ApplyDeltaTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta Delta) (*models.Account, error) {
	var status any
	if delta.Status != nil {
		status = *delta.Status
	}

	row := tx.QueryRow(ctx, `
		UPDATE accounts SET
			wallet_balance = wallet_balance + $2,
			withdrawable_coins = withdrawable_coins + $3,
			total_coins_earned = total_coins_earned + $4,
			earned_cash = earned_cash + $5,
			status = COALESCE($6::text, status),
			updated_at = now()
		WHERE id = $1
			AND wallet_balance + $2 >= 0
			AND withdrawable_coins + $3 >= 0
			AND total_coins_earned + $4 >= 0
		RETURNING `+accountColumns+`
	`, id, delta.WalletCoins, delta.WithdrawableCoins, delta.TotalCoinsEarned,
		delta.EarnedCash, status)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Row exists but the guard rejected it, or it truly is missing.
			var exists bool
			checkErr := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)
			`, id).Scan(&exists)
			if checkErr != nil {
				return nil, fmt.Errorf("failed to check account: %w", checkErr)
			}
			if exists {
				return nil, ErrNegativeBalance
			}
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListByType retrieves accounts of a given type, newest first
func (s *Store) ListByType(ctx context.Context, accountType models.AccountType, limit, offset int) ([]models.Account, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}
