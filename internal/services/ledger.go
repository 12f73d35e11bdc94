package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/eventbus"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/repositories"
	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound is returned when the wallet for the given user does not exist.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInsufficientFunds is returned when a debit would take the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// WalletReader defines read access to wallets.
type WalletReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.WalletDB, error)
}

// WalletWriter defines the two balance mutations. They are the only way
// any component moves money.
type WalletWriter interface {
	Increment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	DecrementIfSufficient(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// LedgerOperationReader reads the append-only operation log.
type LedgerOperationReader interface {
	GetByOperationID(ctx context.Context, operationID string) (*models.LedgerOperationDB, error)
}

// LedgerOperationWriter appends to the operation log.
type LedgerOperationWriter interface {
	Save(ctx context.Context, op models.LedgerOperationDB) error
}

// TransactionGetter looks up the transfer a ledger event belongs to. The
// credit trigger needs it because DEBIT_SUCCESS does not carry the
// receiver id.
type TransactionGetter interface {
	GetByID(ctx context.Context, transactionID uuid.UUID) (*models.TransactionDB, error)
}

// EventPublisher publishes choreography envelopes.
type EventPublisher interface {
	Publish(ctx context.Context, evt models.Envelope) error
}

// EventSubscriber registers choreography handlers.
type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType models.EventType, handler eventbus.Handler) error
}

// FaultChecker is consulted by Credit before mutating; a non-nil error
// fails the credit without touching the balance.
type FaultChecker interface {
	Check(ctx context.Context, transactionID uuid.UUID) error
}

// TxRunner runs fn inside a single database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// LedgerService implements the idempotent money-movement primitives.
// Each primitive runs its balance mutation and its ledger-operation append
// in one database transaction; the primary key on the operation id aborts
// a duplicate application, rolling the duplicate mutation back with it.
type LedgerService struct {
	tx           TxRunner
	walletReader WalletReader
	walletWriter WalletWriter
	opReader     LedgerOperationReader
	opWriter     LedgerOperationWriter
	txnReader    TransactionGetter
	channel      EventPublisher
	faults       FaultChecker
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	tx TxRunner,
	walletReader WalletReader,
	walletWriter WalletWriter,
	opReader LedgerOperationReader,
	opWriter LedgerOperationWriter,
	txnReader TransactionGetter,
	channel EventPublisher,
	faults FaultChecker,
) *LedgerService {
	return &LedgerService{
		tx:           tx,
		walletReader: walletReader,
		walletWriter: walletWriter,
		opReader:     opReader,
		opWriter:     opWriter,
		txnReader:    txnReader,
		channel:      channel,
		faults:       faults,
	}
}

// Debit withdraws amount from the sender's wallet. The conditional update
// is the only mutual-exclusion primitive in the system: it keeps the
// balance non-negative under concurrent debits. On a redelivered event the
// recorded operation is returned unchanged and nothing moves.
func (s *LedgerService) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionID uuid.UUID) (*models.LedgerOperationDB, error) {
	operationID := models.OperationID(transactionID, models.OpDebit)

	if existing, err := s.replay(ctx, operationID); existing != nil || err != nil {
		return existing, err
	}

	op, err := s.apply(ctx, operationID, userID, models.OpDebit, amount, transactionID, true)
	switch {
	case errors.Is(err, repositories.ErrOperationExists):
		return s.fetchApplied(ctx, operationID, err)
	case errors.Is(err, ErrWalletNotFound):
		s.publishFailure(ctx, models.EventDebitFailed, transactionID, models.DebitFailedPayload{
			UserID: userID, Amount: amount, Reason: "wallet not found",
		})
		return nil, err
	case errors.Is(err, ErrInsufficientFunds):
		s.publishFailure(ctx, models.EventDebitFailed, transactionID, models.DebitFailedPayload{
			UserID: userID, Amount: amount, Reason: "insufficient balance",
		})
		return nil, err
	case err != nil:
		return nil, err
	}

	s.publish(ctx, models.EventDebitSuccess, transactionID, models.DebitSuccessPayload{
		UserID: userID, Amount: amount, NewBalance: op.BalanceAfter,
	})
	return op, nil
}

// Credit deposits amount into the receiver's wallet. The failure injector
// is consulted after the idempotency check and before any mutation.
// Wallet-not-found is a hard failure with no retry.
func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionID uuid.UUID) (*models.LedgerOperationDB, error) {
	operationID := models.OperationID(transactionID, models.OpCredit)

	if existing, err := s.replay(ctx, operationID); existing != nil || err != nil {
		return existing, err
	}

	if err := s.faults.Check(ctx, transactionID); err != nil {
		logger.Log.Errorw("credit failed before mutation", "transaction_id", transactionID, "error", err)
		s.publishFailure(ctx, models.EventCreditFailed, transactionID, models.CreditFailedPayload{
			ReceiverID: userID, Amount: amount, Reason: err.Error(),
		})
		return nil, err
	}

	op, err := s.apply(ctx, operationID, userID, models.OpCredit, amount, transactionID, false)
	switch {
	case errors.Is(err, repositories.ErrOperationExists):
		return s.fetchApplied(ctx, operationID, err)
	case errors.Is(err, ErrWalletNotFound):
		s.publishFailure(ctx, models.EventCreditFailed, transactionID, models.CreditFailedPayload{
			ReceiverID: userID, Amount: amount, Reason: "wallet not found",
		})
		return nil, err
	case err != nil:
		return nil, err
	}

	s.publish(ctx, models.EventCreditSuccess, transactionID, models.CreditSuccessPayload{
		UserID: userID, Amount: amount, NewBalance: op.BalanceAfter,
	})
	return op, nil
}

// Refund credits amount back to the sender as the saga compensation step.
// It never fails on balance grounds; the money being returned was debited
// from the same wallet.
func (s *LedgerService) Refund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionID uuid.UUID) (*models.LedgerOperationDB, error) {
	operationID := models.OperationID(transactionID, models.OpRefund)

	if existing, err := s.replay(ctx, operationID); existing != nil || err != nil {
		return existing, err
	}

	op, err := s.apply(ctx, operationID, userID, models.OpRefund, amount, transactionID, false)
	switch {
	case errors.Is(err, repositories.ErrOperationExists):
		return s.fetchApplied(ctx, operationID, err)
	case err != nil:
		return nil, err
	}

	s.publish(ctx, models.EventRefundCompleted, transactionID, models.RefundCompletedPayload{
		UserID: userID, Amount: amount, NewBalance: op.BalanceAfter,
	})
	return op, nil
}

// Deposit is the administrative funding path. It is not keyed by a
// transaction id, so every call moves money and appends a new operation;
// end-to-end idempotency, when needed, is supplied by the HTTP layer.
func (s *LedgerService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.LedgerOperationDB, error) {
	var op *models.LedgerOperationDB
	err := s.tx(ctx, func(ctx context.Context) error {
		wallet, err := s.walletReader.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		newBalance, err := s.walletWriter.Increment(ctx, userID, amount)
		if err != nil {
			return err
		}

		op = &models.LedgerOperationDB{
			OperationID:  uuid.NewString(),
			WalletID:     wallet.WalletID,
			UserID:       userID,
			Operation:    models.OpDeposit,
			Amount:       amount,
			BalanceAfter: newBalance,
			CreatedAt:    time.Now().UTC(),
		}
		return s.opWriter.Save(ctx, *op)
	})
	if err != nil {
		logger.Log.Errorw("deposit failed", "user_id", userID, "amount", amount, "error", err)
		return nil, err
	}
	return op, nil
}

// RegisterHandlers subscribes the choreography triggers: debit on
// initiation, credit on debit success, refund on refund request. The saga
// orchestrator registers its own handlers for the same events
// independently.
func (s *LedgerService) RegisterHandlers(ctx context.Context, ch EventSubscriber) error {
	if err := ch.Subscribe(ctx, models.EventTransactionInitiated, s.onTransactionInitiated); err != nil {
		return err
	}
	if err := ch.Subscribe(ctx, models.EventDebitSuccess, s.onDebitSuccess); err != nil {
		return err
	}
	return ch.Subscribe(ctx, models.EventRefundRequested, s.onRefundRequested)
}

func (s *LedgerService) onTransactionInitiated(ctx context.Context, evt models.Envelope) error {
	payload, err := models.DecodePayload[models.TransactionInitiatedPayload](evt)
	if err != nil {
		return err
	}
	_, err = s.Debit(ctx, payload.SenderID, payload.Amount, evt.TransactionID)
	return err
}

// onDebitSuccess is the credit trigger. The envelope omits the receiver,
// so the transaction is loaded first.
func (s *LedgerService) onDebitSuccess(ctx context.Context, evt models.Envelope) error {
	payload, err := models.DecodePayload[models.DebitSuccessPayload](evt)
	if err != nil {
		return err
	}

	txn, err := s.txnReader.GetByID(ctx, evt.TransactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return errors.New("transaction not found for credit trigger")
	}

	_, err = s.Credit(ctx, txn.ReceiverID, payload.Amount, evt.TransactionID)
	return err
}

func (s *LedgerService) onRefundRequested(ctx context.Context, evt models.Envelope) error {
	payload, err := models.DecodePayload[models.RefundRequestedPayload](evt)
	if err != nil {
		return err
	}
	_, err = s.Refund(ctx, payload.SenderID, payload.Amount, evt.TransactionID)
	return err
}

// replay returns the recorded operation when the idempotency key was
// already committed, so a redelivered event returns the original result
// without moving money or emitting anything.
func (s *LedgerService) replay(ctx context.Context, operationID string) (*models.LedgerOperationDB, error) {
	existing, err := s.opReader.GetByOperationID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Log.Infow("ledger operation already applied", "operation_id", operationID)
	}
	return existing, nil
}

// apply runs one balance mutation and its paired operation append inside a
// single database transaction.
func (s *LedgerService) apply(
	ctx context.Context,
	operationID string,
	userID uuid.UUID,
	opType models.OperationType,
	amount decimal.Decimal,
	transactionID uuid.UUID,
	conditional bool,
) (*models.LedgerOperationDB, error) {
	var op *models.LedgerOperationDB
	err := s.tx(ctx, func(ctx context.Context) error {
		wallet, err := s.walletReader.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		var newBalance decimal.Decimal
		if conditional {
			newBalance, err = s.walletWriter.DecrementIfSufficient(ctx, userID, amount)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientFunds
			}
		} else {
			newBalance, err = s.walletWriter.Increment(ctx, userID, amount)
		}
		if err != nil {
			return err
		}

		op = &models.LedgerOperationDB{
			OperationID:   operationID,
			WalletID:      wallet.WalletID,
			UserID:        userID,
			Operation:     opType,
			Amount:        amount,
			BalanceAfter:  newBalance,
			TransactionID: uuid.NullUUID{UUID: transactionID, Valid: true},
			CreatedAt:     time.Now().UTC(),
		}
		return s.opWriter.Save(ctx, *op)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// fetchApplied resolves a lost insert race: another delivery of the same
// event committed first and our transaction rolled back, so the committed
// record is the result.
func (s *LedgerService) fetchApplied(ctx context.Context, operationID string, cause error) (*models.LedgerOperationDB, error) {
	existing, err := s.opReader.GetByOperationID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, cause
	}
	logger.Log.Infow("ledger operation applied concurrently", "operation_id", operationID)
	return existing, nil
}

func (s *LedgerService) publish(ctx context.Context, eventType models.EventType, transactionID uuid.UUID, payload any) {
	evt, err := models.NewEnvelope(eventType, transactionID, payload)
	if err != nil {
		logger.Log.Errorw("failed to build event", "event_type", eventType, "transaction_id", transactionID, "error", err)
		return
	}
	if err := s.channel.Publish(ctx, evt); err != nil {
		logger.Log.Errorw("failed to publish event", "event_type", eventType, "transaction_id", transactionID, "error", err)
	}
}

// publishFailure pairs a failed mutation with its *_FAILED event. The
// event drives the saga; the error the primitive returns is for the
// immediate caller.
func (s *LedgerService) publishFailure(ctx context.Context, eventType models.EventType, transactionID uuid.UUID, payload any) {
	s.publish(ctx, eventType, transactionID, payload)
}
