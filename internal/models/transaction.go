package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transfer.
type TransactionStatus string

const (
	StatusInitiated TransactionStatus = "INITIATED"
	StatusDebited   TransactionStatus = "DEBITED"
	StatusCredited  TransactionStatus = "CREDITED" // legacy alias of DEBITED kept for stored rows
	StatusRefunding TransactionStatus = "REFUNDING"
	StatusCompleted TransactionStatus = "COMPLETED" // terminal
	StatusFailed    TransactionStatus = "FAILED"    // terminal
	StatusRefunded  TransactionStatus = "REFUNDED"  // terminal, legacy/unused
)

// transitions lists every allowed status edge. Terminal states have no
// outgoing edges, so any transition requested from them is rejected.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusInitiated: {StatusDebited, StatusFailed},
	StatusDebited:   {StatusCompleted, StatusRefunding},
	StatusCredited:  {StatusCompleted},
	StatusRefunding: {StatusFailed},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// TransactionDB represents one transfer attempt in the database.
// The row is created once at initiation and mutated only by the saga
// handlers; once a terminal status is reached it never changes again.
type TransactionDB struct {
	TransactionID uuid.UUID         `json:"transaction_id" db:"transaction_id"` // Unique transfer identifier
	SenderID      uuid.UUID         `json:"sender_id" db:"sender_id"`           // User sending the funds
	ReceiverID    uuid.UUID         `json:"receiver_id" db:"receiver_id"`       // User receiving the funds
	Amount        decimal.Decimal   `json:"amount" db:"amount"`                 // Positive transfer amount
	Currency      string            `json:"currency" db:"currency"`             // Currency code
	Status        TransactionStatus `json:"status" db:"status"`                 // Current saga state
	Description   string            `json:"description" db:"description"`       // Free-text description
	FailureReason sql.NullString    `json:"failure_reason" db:"failure_reason"` // Set only on failure paths
	Refunded      bool              `json:"refunded" db:"refunded"`             // True when compensation ran
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`         // Initiation timestamp
	CompletedAt   sql.NullTime      `json:"completed_at" db:"completed_at"`     // Set only on terminal states
}
