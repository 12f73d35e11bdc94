package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies a choreography event. The set is closed: every
// subscriber switches on it and the channel names its topics after it.
type EventType string

const (
	EventTransactionInitiated EventType = "TRANSACTION_INITIATED"
	EventDebitSuccess         EventType = "DEBIT_SUCCESS"
	EventDebitFailed          EventType = "DEBIT_FAILED"
	EventCreditSuccess        EventType = "CREDIT_SUCCESS"
	EventCreditFailed         EventType = "CREDIT_FAILED"
	EventRefundRequested      EventType = "REFUND_REQUESTED"
	EventRefundCompleted      EventType = "REFUND_COMPLETED"
	EventTransactionCompleted EventType = "TRANSACTION_COMPLETED"
	EventTransactionFailed    EventType = "TRANSACTION_FAILED"
)

// Envelope is the wire unit of choreography. The payload shape is fixed by
// the event type; subscribers decode it with DecodePayload.
type Envelope struct {
	Type          EventType       `json:"type"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// TransactionInitiatedPayload starts the saga; it triggers the debit of the
// sender.
type TransactionInitiatedPayload struct {
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// DebitSuccessPayload deliberately omits the receiver id to keep the
// envelope small; the credit trigger loads the transaction to find it.
type DebitSuccessPayload struct {
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type DebitFailedPayload struct {
	UserID uuid.UUID       `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type CreditSuccessPayload struct {
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type CreditFailedPayload struct {
	ReceiverID uuid.UUID       `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
}

// RefundRequestedPayload triggers the compensation credit-back on the
// sender.
type RefundRequestedPayload struct {
	SenderID uuid.UUID       `json:"sender_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type RefundCompletedPayload struct {
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type TransactionCompletedPayload struct {
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

type TransactionFailedPayload struct {
	Reason   string `json:"reason"`
	Refunded bool   `json:"refunded"`
}

// NewEnvelope builds an envelope for the given payload, stamping the
// current time.
func NewEnvelope(eventType EventType, transactionID uuid.UUID, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:          eventType,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into the typed payload
// struct for the event.
func DecodePayload[T any](evt Envelope) (T, error) {
	var payload T
	err := json.Unmarshal(evt.Payload, &payload)
	return payload, err
}
