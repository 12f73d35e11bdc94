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

// Depositer defines the interface that the service must implement.
type Depositer interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.LedgerOperationDB, error)
}

// DepositRequest represents the JSON body for depositing funds
// swagger:model DepositRequest
type DepositRequest struct {
	// Amount to deposit
	// required: true
	// default: 100.0
	Amount decimal.Decimal `json:"amount"`
}

// DepositResponse represents a successful deposit response
// swagger:model DepositResponse
type DepositResponse struct {
	// Success message
	// default: Account topped up successfully
	Message string `json:"message"`

	// Ledger operation id recorded for this deposit
	OperationID string `json:"operation_id"`

	// New balance of the user
	NewBalance decimal.Decimal `json:"new_balance"`
}

// DepositErrorResponse represents an error response for deposit
// swagger:model DepositErrorResponse
type DepositErrorResponse struct {
	// Error message
	// default: Invalid amount
	Error string `json:"error"`
}

// NewDepositHandler returns an HTTP handler for depositing funds into the user's wallet.
// @Summary Deposit funds
// @Description Add funds to the authenticated user's wallet. Each call moves money; clients supply an Idempotency-Key header to make retries safe.
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.DepositRequest true "Deposit Request"
// @Success 200 {object} handlers.DepositResponse "Account topped up successfully"
// @Failure 400 {object} handlers.DepositErrorResponse "Invalid amount"
// @Failure 401 {object} handlers.DepositErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.DepositErrorResponse "Wallet not found"
// @Router /wallet/deposit [post]
func NewDepositHandler(tokener BalanceTokener, svc Depositer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(ctx, tokener, r)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(DepositErrorResponse{Error: "Unauthorized"})
			return
		}

		var req DepositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(DepositErrorResponse{Error: "Invalid request body"})
			return
		}

		if !req.Amount.IsPositive() {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(DepositErrorResponse{Error: "Invalid amount"})
			return
		}

		op, err := svc.Deposit(ctx, userID, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrWalletNotFound):
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(DepositErrorResponse{Error: "Wallet not found"})
			default:
				logger.Log.Errorw("internal server error", "err", err)
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(DepositErrorResponse{Error: "Internal server error"})
			}
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(DepositResponse{
			Message:     "Account topped up successfully",
			OperationID: op.OperationID,
			NewBalance:  op.BalanceAfter,
		})
	}
}
