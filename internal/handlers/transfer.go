package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/services"
	"github.com/shopspring/decimal"
)

// TransferInitiator defines the interface that the saga service must implement.
type TransferInitiator interface {
	InitiateTransaction(ctx context.Context, senderID, receiverID uuid.UUID, amount decimal.Decimal, currency, description string) (*models.TransactionDB, error)
}

// TransferRequest represents the JSON body for initiating a transfer
// swagger:model TransferRequest
type TransferRequest struct {
	// Receiver user id
	// required: true
	ReceiverID uuid.UUID `json:"receiver_id"`

	// Amount to transfer
	// required: true
	// default: 100.0
	Amount decimal.Decimal `json:"amount"`

	// Currency code
	// default: USD
	Currency string `json:"currency"`

	// Free-text description
	Description string `json:"description"`
}

// TransferResponse represents an accepted transfer
// swagger:model TransferResponse
type TransferResponse struct {
	// Transaction id to poll for the outcome
	TransactionID uuid.UUID `json:"transaction_id"`

	// Saga state at acceptance time
	// default: INITIATED
	Status models.TransactionStatus `json:"status"`
}

// TransferErrorResponse represents an error response for transfers
// swagger:model TransferErrorResponse
type TransferErrorResponse struct {
	// Error message
	// default: Invalid amount
	Error string `json:"error"`
}

// NewTransferHandler returns an HTTP handler that starts a wallet-to-wallet transfer.
// The transfer itself is asynchronous: the handler records the transaction
// and emits the initiation event, and the caller polls the transaction for
// the terminal state.
// @Summary Initiate a transfer
// @Description Starts an asynchronous transfer from the authenticated user's wallet to the receiver's wallet.
// @Tags transfer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.TransferRequest true "Transfer Request"
// @Success 202 {object} handlers.TransferResponse "Transfer accepted"
// @Failure 400 {object} handlers.TransferErrorResponse "Self-transfer or invalid amount"
// @Failure 401 {object} handlers.TransferErrorResponse "Unauthorized"
// @Router /transfer [post]
func NewTransferHandler(tokener BalanceTokener, svc TransferInitiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		senderID, err := userIDFromRequest(ctx, tokener, r)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(TransferErrorResponse{Error: "Unauthorized"})
			return
		}

		var req TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(TransferErrorResponse{Error: "Invalid request body"})
			return
		}

		txn, err := svc.InitiateTransaction(ctx, senderID, req.ReceiverID, req.Amount, req.Currency, req.Description)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrSelfTransfer):
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(TransferErrorResponse{Error: "Sender and receiver must differ"})
			case errors.Is(err, services.ErrInvalidAmount):
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(TransferErrorResponse{Error: "Invalid amount"})
			default:
				logger.Log.Errorw("internal server error", "err", err)
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(TransferErrorResponse{Error: "Internal server error"})
			}
			return
		}

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(TransferResponse{
			TransactionID: txn.TransactionID,
			Status:        txn.Status,
		})
	}
}
