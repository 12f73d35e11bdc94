package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/services"
)

// TransactionGetter defines the interface that the saga service must implement.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*models.TransactionDB, error)
}

// TransactionResponse represents one transfer's current state
// swagger:model TransactionResponse
type TransactionResponse struct {
	Transaction models.TransactionDB `json:"transaction"`
}

// TransactionErrorResponse represents an error response for transaction queries
// swagger:model TransactionErrorResponse
type TransactionErrorResponse struct {
	// Error message
	// default: Transaction not found
	Error string `json:"error"`
}

// NewTransactionHandler returns an HTTP handler that reports a transfer's state.
// @Summary Get transaction status
// @Description Returns the transfer record, including status, failure reason and refunded flag.
// @Tags transfer
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} handlers.TransactionResponse "Transaction record"
// @Failure 401 {object} handlers.TransactionErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.TransactionErrorResponse "Transaction not found"
// @Router /transactions/{id} [get]
func NewTransactionHandler(tokener BalanceTokener, svc TransactionGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if _, err := userIDFromRequest(ctx, tokener, r); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(TransactionErrorResponse{Error: "Unauthorized"})
			return
		}

		transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(TransactionErrorResponse{Error: "Invalid transaction id"})
			return
		}

		txn, err := svc.GetTransaction(ctx, transactionID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTransactionNotFound):
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(TransactionErrorResponse{Error: "Transaction not found"})
			default:
				logger.Log.Errorw("internal server error", "err", err)
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(TransactionErrorResponse{Error: "Internal server error"})
			}
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(TransactionResponse{Transaction: *txn})
	}
}
