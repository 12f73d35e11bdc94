package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType classifies a single balance mutation.
type OperationType string

const (
	OpDebit   OperationType = "DEBIT"
	OpCredit  OperationType = "CREDIT"
	OpRefund  OperationType = "REFUND"
	OpDeposit OperationType = "DEPOSIT"
)

// OperationID builds the deterministic idempotency key for a saga step.
// A given (transaction, operation) pair always maps to the same key, so the
// uniqueness constraint on the ledger table guarantees the mutation is
// applied at most once no matter how often the triggering event is
// redelivered.
func OperationID(transactionID uuid.UUID, op OperationType) string {
	return fmt.Sprintf("%s:%s", transactionID, op)
}

// LedgerOperationDB is one append-only row in the operation log. The row
// doubles as the dedup guard and the audit record for its mutation; it is
// never updated or deleted.
type LedgerOperationDB struct {
	OperationID   string          `json:"operation_id" db:"operation_id"`     // Idempotency key, primary key
	WalletID      uuid.UUID       `json:"wallet_id" db:"wallet_id"`           // Wallet whose balance moved
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`               // Owner of the wallet
	Operation     OperationType   `json:"operation" db:"operation"`           // DEBIT, CREDIT, REFUND or DEPOSIT
	Amount        decimal.Decimal `json:"amount" db:"amount"`                 // Amount moved
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`   // Balance snapshot after the mutation
	TransactionID uuid.NullUUID   `json:"transaction_id" db:"transaction_id"` // Absent for ad-hoc deposits
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`         // Time the mutation was applied
}
