package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	txnID := uuid.New()
	amount := decimal.NewFromInt(100)

	evt, err := NewEnvelope(EventDebitSuccess, txnID, DebitSuccessPayload{
		UserID:     uuid.New(),
		Amount:     amount,
		NewBalance: decimal.NewFromInt(900),
	})
	require.NoError(t, err)

	assert.Equal(t, EventDebitSuccess, evt.Type)
	assert.Equal(t, txnID, evt.TransactionID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.NotEmpty(t, evt.Payload)
}

func TestDecodePayload(t *testing.T) {
	txnID := uuid.New()
	senderID := uuid.New()
	receiverID := uuid.New()
	amount := decimal.NewFromFloat(250.50)

	evt, err := NewEnvelope(EventTransactionInitiated, txnID, TransactionInitiatedPayload{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Currency:   USD,
	})
	require.NoError(t, err)

	payload, err := DecodePayload[TransactionInitiatedPayload](evt)
	require.NoError(t, err)

	assert.Equal(t, senderID, payload.SenderID)
	assert.Equal(t, receiverID, payload.ReceiverID)
	assert.True(t, amount.Equal(payload.Amount))
	assert.Equal(t, USD, payload.Currency)
}

func TestDecodePayload_InvalidPayload(t *testing.T) {
	evt := Envelope{
		Type:    EventDebitFailed,
		Payload: []byte("not json"),
	}

	_, err := DecodePayload[DebitFailedPayload](evt)
	assert.Error(t, err)
}

func TestOperationID(t *testing.T) {
	txnID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8:DEBIT", OperationID(txnID, OpDebit))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8:CREDIT", OperationID(txnID, OpCredit))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8:REFUND", OperationID(txnID, OpRefund))

	// The same pair always maps to the same key.
	assert.Equal(t, OperationID(txnID, OpDebit), OperationID(txnID, OpDebit))
}
