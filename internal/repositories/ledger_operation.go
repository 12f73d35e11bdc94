package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
)

// ErrOperationExists is returned by Save when a ledger operation with the
// same operation id has already been committed. Ledger operations are
// append-only, so the caller treats this as "already applied" and fetches
// the existing record.
var ErrOperationExists = errors.New("ledger operation already exists")

// pgUniqueViolation is the Postgres error code for a unique constraint
// violation.
const pgUniqueViolation = "23505"

// LedgerOperationReadRepository reads the append-only operation log.
type LedgerOperationReadRepository struct {
	db *sqlx.DB
}

func NewLedgerOperationReadRepository(db *sqlx.DB) *LedgerOperationReadRepository {
	return &LedgerOperationReadRepository{db: db}
}

// GetByOperationID retrieves one operation by its idempotency key. Returns
// (nil, nil) when no such operation exists.
func (r *LedgerOperationReadRepository) GetByOperationID(ctx context.Context, operationID string) (*models.LedgerOperationDB, error) {
	const query = `
		SELECT operation_id, wallet_id, user_id, operation, amount, balance_after, transaction_id, created_at
		FROM ledger_operations
		WHERE operation_id = $1
	`

	var op models.LedgerOperationDB
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &op, query, operationID)

	// Log query, args, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{operationID},
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CountByTransactionID returns how many operations were recorded for a
// transaction, used by audit surfaces.
func (r *LedgerOperationReadRepository) CountByTransactionID(ctx context.Context, transactionID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM ledger_operations WHERE transaction_id = $1
	`

	var count int
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &count, query, transactionID)

	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{transactionID},
		"result", count,
		"error", err,
	)

	return count, err
}

// LedgerOperationWriteRepository appends to the operation log.
type LedgerOperationWriteRepository struct {
	db *sqlx.DB
}

func NewLedgerOperationWriteRepository(db *sqlx.DB) *LedgerOperationWriteRepository {
	return &LedgerOperationWriteRepository{db: db}
}

// Save inserts one operation row. The primary key on operation_id is the
// idempotency constraint: a duplicate insert surfaces as
// ErrOperationExists, which aborts the surrounding transaction and with it
// any balance mutation made in the same transaction.
func (r *LedgerOperationWriteRepository) Save(ctx context.Context, op models.LedgerOperationDB) error {
	query := `
		INSERT INTO ledger_operations (operation_id, wallet_id, user_id, operation, amount, balance_after, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	args := []any{op.OperationID, op.WalletID, op.UserID, op.Operation, op.Amount, op.BalanceAfter, op.TransactionID}

	_, err := executor(ctx, r.db).ExecContext(ctx, query, args...)

	// Log query, args, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"error", err,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrOperationExists
	}
	return err
}
