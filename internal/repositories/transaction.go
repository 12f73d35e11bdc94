package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
)

// TransactionReadRepository reads transfer records.
type TransactionReadRepository struct {
	db *sqlx.DB
}

func NewTransactionReadRepository(db *sqlx.DB) *TransactionReadRepository {
	return &TransactionReadRepository{db: db}
}

// GetByID retrieves one transaction. Returns (nil, nil) when absent.
func (r *TransactionReadRepository) GetByID(ctx context.Context, transactionID uuid.UUID) (*models.TransactionDB, error) {
	const query = `
		SELECT transaction_id, sender_id, receiver_id, amount, currency, status,
		       description, failure_reason, refunded, created_at, completed_at
		FROM transactions
		WHERE transaction_id = $1
	`

	var txn models.TransactionDB
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &txn, query, transactionID)

	// Log query, args, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{transactionID},
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransactionWriteRepository creates transfer records and advances their
// status. Every status update is conditional on the expected current
// status, so a redelivered event cannot apply a transition twice.
type TransactionWriteRepository struct {
	db *sqlx.DB
}

func NewTransactionWriteRepository(db *sqlx.DB) *TransactionWriteRepository {
	return &TransactionWriteRepository{db: db}
}

// Save inserts a freshly initiated transaction.
func (r *TransactionWriteRepository) Save(ctx context.Context, txn models.TransactionDB) error {
	query := `
		INSERT INTO transactions (transaction_id, sender_id, receiver_id, amount, currency, status, description, refunded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
	`
	args := []any{txn.TransactionID, txn.SenderID, txn.ReceiverID, txn.Amount, txn.Currency, txn.Status, txn.Description}

	_, err := executor(ctx, r.db).ExecContext(ctx, query, args...)

	// Log query, args, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"error", err,
	)

	return err
}

// SetStatus moves the transaction from one status to another. Returns
// false when the row was not in the expected status.
func (r *TransactionWriteRepository) SetStatus(ctx context.Context, transactionID uuid.UUID, from, to models.TransactionStatus) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $3
		WHERE transaction_id = $1 AND status = $2
	`
	return r.exec(ctx, query, transactionID, from, to)
}

// SetStatusWithReason moves the transaction to a failure-adjacent status
// and records the failure reason alongside.
func (r *TransactionWriteRepository) SetStatusWithReason(ctx context.Context, transactionID uuid.UUID, from, to models.TransactionStatus, reason string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $3, failure_reason = $4
		WHERE transaction_id = $1 AND status = $2
	`
	return r.exec(ctx, query, transactionID, from, to, reason)
}

// MarkCompleted finalizes the transaction as COMPLETED with the completion
// timestamp.
func (r *TransactionWriteRepository) MarkCompleted(ctx context.Context, transactionID uuid.UUID, from models.TransactionStatus) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $3, completed_at = NOW()
		WHERE transaction_id = $1 AND status = $2
	`
	return r.exec(ctx, query, transactionID, from, models.StatusCompleted)
}

// MarkFailed finalizes the transaction as FAILED with the failure reason,
// the refunded flag and the completion timestamp.
func (r *TransactionWriteRepository) MarkFailed(ctx context.Context, transactionID uuid.UUID, from models.TransactionStatus, reason string, refunded bool) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $3, failure_reason = $4, refunded = $5, completed_at = NOW()
		WHERE transaction_id = $1 AND status = $2
	`
	return r.exec(ctx, query, transactionID, from, models.StatusFailed, reason, refunded)
}

func (r *TransactionWriteRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := executor(ctx, r.db).ExecContext(ctx, query, args...)

	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}

	// Log query, args, result, error
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", rowsAffected,
		"error", err,
	)

	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}
