package repositories

import (
	"database/sql"
	"errors"
	"strings"

	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/shopspring/decimal"
)

// WalletReadRepository handles wallet read operations
type WalletReadRepository struct {
	db *sqlx.DB
}

func NewWalletReadRepository(db *sqlx.DB) *WalletReadRepository {
	return &WalletReadRepository{db: db}
}

// GetByUserID retrieves the user's wallet. Returns (nil, nil) when the
// wallet does not exist.
func (r *WalletReadRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.WalletDB, error) {
	const query = `
		SELECT wallet_id, user_id, currency, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var wallet models.WalletDB
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &wallet, query, userID)

	// Log query, args, result, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{userID},
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// WalletWriteRepository handles wallet write operations. Increment and
// DecrementIfSufficient are the only statements in the codebase that touch
// the balance column.
type WalletWriteRepository struct {
	db *sqlx.DB
}

func NewWalletWriteRepository(db *sqlx.DB) *WalletWriteRepository {
	return &WalletWriteRepository{db: db}
}

// Save inserts the wallet row created at user registration.
func (r *WalletWriteRepository) Save(ctx context.Context, userID uuid.UUID, currency string) error {
	query := `
		INSERT INTO wallets (wallet_id, user_id, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
	`
	args := []any{uuid.New(), userID, currency}

	_, err := executor(ctx, r.db).ExecContext(ctx, query, args...)

	// Log query, args, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"error", err,
	)

	return err
}

// Increment unconditionally adds amount to the balance and returns the new
// balance. Returns sql.ErrNoRows when the wallet does not exist.
func (r *WalletWriteRepository) Increment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`
	args := []any{userID, amount}

	var balance decimal.Decimal
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &balance, query, args...)

	// Log query, args, result, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", balance,
		"error", err,
	)

	return balance, err
}

// DecrementIfSufficient subtracts amount from the balance only when the
// current balance covers it, in a single conditional update. Returns
// sql.ErrNoRows when the balance is insufficient or the wallet is absent;
// callers distinguish the two with a read.
func (r *WalletWriteRepository) DecrementIfSufficient(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`
	args := []any{userID, amount}

	var balance decimal.Decimal
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &balance, query, args...)

	// Log query, args, result, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", balance,
		"error", err,
	)

	return balance, err
}
