package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrSelfTransfer is returned when sender and receiver are the same user.
	ErrSelfTransfer = errors.New("sender and receiver must differ")
	// ErrInvalidAmount is returned when the transfer amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrTransactionNotFound is returned when no transaction exists for the id.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// InvalidTransitionError rejects a status change the state machine does
// not allow. Duplicate event deliveries surface as this error rather than
// as a silently reapplied transition.
type InvalidTransitionError struct {
	TransactionID uuid.UUID
	From          models.TransactionStatus
	To            models.TransactionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s for transaction %s", e.From, e.To, e.TransactionID)
}

// TransactionWriter persists transfer records and their status changes.
type TransactionWriter interface {
	Save(ctx context.Context, txn models.TransactionDB) error
	SetStatus(ctx context.Context, transactionID uuid.UUID, from, to models.TransactionStatus) (bool, error)
	SetStatusWithReason(ctx context.Context, transactionID uuid.UUID, from, to models.TransactionStatus, reason string) (bool, error)
	MarkCompleted(ctx context.Context, transactionID uuid.UUID, from models.TransactionStatus) (bool, error)
	MarkFailed(ctx context.Context, transactionID uuid.UUID, from models.TransactionStatus, reason string, refunded bool) (bool, error)
}

// SagaService drives a transfer to a terminal state. It owns the
// transaction record; the only other party that touches money is the
// ledger engine, which this service coordinates purely through events.
type SagaService struct {
	txnReader TransactionGetter
	txnWriter TransactionWriter
	channel   EventPublisher
}

// NewSagaService creates a new SagaService.
func NewSagaService(txnReader TransactionGetter, txnWriter TransactionWriter, channel EventPublisher) *SagaService {
	return &SagaService{
		txnReader: txnReader,
		txnWriter: txnWriter,
		channel:   channel,
	}
}

// InitiateTransaction validates the request, records the transaction as
// INITIATED and emits TRANSACTION_INITIATED. Nothing is emitted when
// validation fails.
func (s *SagaService) InitiateTransaction(
	ctx context.Context,
	senderID, receiverID uuid.UUID,
	amount decimal.Decimal,
	currency, description string,
) (*models.TransactionDB, error) {
	if senderID == receiverID {
		return nil, ErrSelfTransfer
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = models.USD
	}

	txn := models.TransactionDB{
		TransactionID: uuid.New(),
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Amount:        amount,
		Currency:      currency,
		Status:        models.StatusInitiated,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.txnWriter.Save(ctx, txn); err != nil {
		logger.Log.Errorw("failed to save transaction", "transaction_id", txn.TransactionID, "error", err)
		return nil, err
	}

	evt, err := models.NewEnvelope(models.EventTransactionInitiated, txn.TransactionID, models.TransactionInitiatedPayload{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Currency:   currency,
	})
	if err != nil {
		return nil, err
	}
	if err := s.channel.Publish(ctx, evt); err != nil {
		logger.Log.Errorw("failed to publish initiation event", "transaction_id", txn.TransactionID, "error", err)
		return nil, err
	}

	return &txn, nil
}

// GetTransaction returns the transfer record for status queries.
func (s *SagaService) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*models.TransactionDB, error) {
	txn, err := s.txnReader.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

// RegisterHandlers subscribes the five choreography handlers. They must be
// registered before the ledger triggers so state is advanced before the
// next saga step fires on the same event.
func (s *SagaService) RegisterHandlers(ctx context.Context, ch EventSubscriber) error {
	subscriptions := []struct {
		eventType models.EventType
		handler   func(ctx context.Context, evt models.Envelope) error
	}{
		{models.EventDebitSuccess, s.onDebitSuccess},
		{models.EventDebitFailed, s.onDebitFailed},
		{models.EventCreditSuccess, s.onCreditSuccess},
		{models.EventCreditFailed, s.onCreditFailed},
		{models.EventRefundCompleted, s.onRefundCompleted},
	}
	for _, sub := range subscriptions {
		if err := ch.Subscribe(ctx, sub.eventType, sub.handler); err != nil {
			return err
		}
	}
	return nil
}

// onDebitSuccess advances INITIATED -> DEBITED. The sender's money is now
// held by the saga until the credit lands or compensation returns it.
func (s *SagaService) onDebitSuccess(ctx context.Context, evt models.Envelope) error {
	txn, err := s.loadForTransition(ctx, evt.TransactionID, models.StatusDebited)
	if err != nil {
		return s.logged(evt, err)
	}

	ok, err := s.txnWriter.SetStatus(ctx, txn.TransactionID, txn.Status, models.StatusDebited)
	if err != nil {
		return s.logged(evt, err)
	}
	if !ok {
		return s.logged(evt, s.staleTransition(ctx, txn.TransactionID, models.StatusDebited))
	}
	return nil
}

// onDebitFailed terminates INITIATED -> FAILED with no compensation: no
// money had moved yet.
func (s *SagaService) onDebitFailed(ctx context.Context, evt models.Envelope) error {
	payload, err := models.DecodePayload[models.DebitFailedPayload](evt)
	if err != nil {
		return s.logged(evt, err)
	}
	reason := fmt.Sprintf("debit failed: %s", payload.Reason)

	txn, err := s.loadForTransition(ctx, evt.TransactionID, models.StatusFailed)
	if err != nil {
		return s.logged(evt, err)
	}

	ok, err := s.txnWriter.MarkFailed(ctx, txn.TransactionID, txn.Status, reason, false)
	if err != nil {
		return s.logged(evt, err)
	}
	if !ok {
		return s.logged(evt, s.staleTransition(ctx, txn.TransactionID, models.StatusFailed))
	}

	s.publishTerminal(ctx, models.EventTransactionFailed, txn.TransactionID, models.TransactionFailedPayload{
		Reason: reason, Refunded: false,
	})
	return nil
}

// onCreditSuccess completes the transfer: DEBITED -> COMPLETED.
func (s *SagaService) onCreditSuccess(ctx context.Context, evt models.Envelope) error {
	txn, err := s.loadForTransition(ctx, evt.TransactionID, models.StatusCompleted)
	if err != nil {
		return s.logged(evt, err)
	}

	ok, err := s.txnWriter.MarkCompleted(ctx, txn.TransactionID, txn.Status)
	if err != nil {
		return s.logged(evt, err)
	}
	if !ok {
		return s.logged(evt, s.staleTransition(ctx, txn.TransactionID, models.StatusCompleted))
	}

	s.publishTerminal(ctx, models.EventTransactionCompleted, txn.TransactionID, models.TransactionCompletedPayload{
		SenderID:   txn.SenderID,
		ReceiverID: txn.ReceiverID,
		Amount:     txn.Amount,
		Currency:   txn.Currency,
	})
	return nil
}

// onCreditFailed starts compensation: DEBITED -> REFUNDING, then asks the
// ledger to return the debited amount to the sender.
func (s *SagaService) onCreditFailed(ctx context.Context, evt models.Envelope) error {
	payload, err := models.DecodePayload[models.CreditFailedPayload](evt)
	if err != nil {
		return s.logged(evt, err)
	}
	reason := fmt.Sprintf("credit failed: %s", payload.Reason)

	txn, err := s.loadForTransition(ctx, evt.TransactionID, models.StatusRefunding)
	if err != nil {
		return s.logged(evt, err)
	}

	ok, err := s.txnWriter.SetStatusWithReason(ctx, txn.TransactionID, txn.Status, models.StatusRefunding, reason)
	if err != nil {
		return s.logged(evt, err)
	}
	if !ok {
		return s.logged(evt, s.staleTransition(ctx, txn.TransactionID, models.StatusRefunding))
	}

	refundEvt, err := models.NewEnvelope(models.EventRefundRequested, txn.TransactionID, models.RefundRequestedPayload{
		SenderID: txn.SenderID,
		Amount:   txn.Amount,
	})
	if err != nil {
		return s.logged(evt, err)
	}
	if err := s.channel.Publish(ctx, refundEvt); err != nil {
		return s.logged(evt, err)
	}
	return nil
}

// onRefundCompleted terminates the compensated transfer: REFUNDING ->
// FAILED with refunded set. The failure reason recorded when compensation
// started is kept.
func (s *SagaService) onRefundCompleted(ctx context.Context, evt models.Envelope) error {
	txn, err := s.loadForTransition(ctx, evt.TransactionID, models.StatusFailed)
	if err != nil {
		return s.logged(evt, err)
	}

	reason := "credit failed, funds refunded to sender"
	if txn.FailureReason.Valid && txn.FailureReason.String != "" {
		reason = fmt.Sprintf("%s, funds refunded to sender", txn.FailureReason.String)
	}

	ok, err := s.txnWriter.MarkFailed(ctx, txn.TransactionID, txn.Status, reason, true)
	if err != nil {
		return s.logged(evt, err)
	}
	if !ok {
		return s.logged(evt, s.staleTransition(ctx, txn.TransactionID, models.StatusFailed))
	}

	s.publishTerminal(ctx, models.EventTransactionFailed, txn.TransactionID, models.TransactionFailedPayload{
		Reason: reason, Refunded: true,
	})
	return nil
}

// loadForTransition fetches the transaction and validates the requested
// transition against the state machine.
func (s *SagaService) loadForTransition(ctx context.Context, transactionID uuid.UUID, to models.TransactionStatus) (*models.TransactionDB, error) {
	txn, err := s.txnReader.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if !models.CanTransition(txn.Status, to) {
		return nil, &InvalidTransitionError{TransactionID: transactionID, From: txn.Status, To: to}
	}
	return txn, nil
}

// staleTransition rebuilds the rejection after a conditional update
// matched no row: another delivery moved the transaction first.
func (s *SagaService) staleTransition(ctx context.Context, transactionID uuid.UUID, to models.TransactionStatus) error {
	txn, err := s.txnReader.GetByID(ctx, transactionID)
	if err != nil || txn == nil {
		return &InvalidTransitionError{TransactionID: transactionID, To: to}
	}
	return &InvalidTransitionError{TransactionID: transactionID, From: txn.Status, To: to}
}

// logged records a handler failure and re-raises it to the channel's
// dispatch loop instead of swallowing it.
func (s *SagaService) logged(evt models.Envelope, err error) error {
	logger.Log.Errorw("saga handler failed",
		"event_type", evt.Type,
		"transaction_id", evt.TransactionID,
		"error", err,
	)
	return err
}

func (s *SagaService) publishTerminal(ctx context.Context, eventType models.EventType, transactionID uuid.UUID, payload any) {
	evt, err := models.NewEnvelope(eventType, transactionID, payload)
	if err != nil {
		logger.Log.Errorw("failed to build terminal event", "event_type", eventType, "transaction_id", transactionID, "error", err)
		return
	}
	if err := s.channel.Publish(ctx, evt); err != nil {
		logger.Log.Errorw("failed to publish terminal event", "event_type", eventType, "transaction_id", transactionID, "error", err)
	}
}
