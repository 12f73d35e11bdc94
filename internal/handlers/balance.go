package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/shopspring/decimal"
)

// BalanceTokener defines only the methods needed by this handler.
type BalanceTokener interface {
	GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error)
	GetUserID(ctx context.Context, tokenString string) (uuid.UUID, error)
}

// WalletGetter defines the interface that the service must implement.
type WalletGetter interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.WalletDB, error)
}

// BalanceResponse represents the user's wallet balance
// swagger:model BalanceResponse
type BalanceResponse struct {
	// Wallet identifier
	WalletID uuid.UUID `json:"wallet_id"`

	// Current balance
	// default: 1000.0
	Balance decimal.Decimal `json:"balance"`

	// Currency code
	// default: USD
	Currency string `json:"currency"`
}

// BalanceErrorResponse represents an error response for balance queries
// swagger:model BalanceErrorResponse
type BalanceErrorResponse struct {
	// Error message
	// default: Wallet not found
	Error string `json:"error"`
}

// NewBalanceHandler returns an HTTP handler that reports the caller's wallet balance.
// @Summary Get wallet balance
// @Description Returns the authenticated user's wallet id, balance and currency.
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handlers.BalanceResponse "Current balance"
// @Failure 401 {object} handlers.BalanceErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.BalanceErrorResponse "Wallet not found"
// @Router /balance [get]
func NewBalanceHandler(tokener BalanceTokener, wallets WalletGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(ctx, tokener, r)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(BalanceErrorResponse{Error: "Unauthorized"})
			return
		}

		wallet, err := wallets.GetByUserID(ctx, userID)
		if err != nil {
			logger.Log.Errorw("failed to get wallet", "user_id", userID, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(BalanceErrorResponse{Error: "Internal server error"})
			return
		}
		if wallet == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(BalanceErrorResponse{Error: "Wallet not found"})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(BalanceResponse{
			WalletID: wallet.WalletID,
			Balance:  wallet.Balance,
			Currency: wallet.Currency,
		})
	}
}

// userIDFromRequest resolves the authenticated user from the bearer token.
func userIDFromRequest(ctx context.Context, tokener BalanceTokener, r *http.Request) (uuid.UUID, error) {
	tokenString, err := tokener.GetTokenFromRequest(ctx, r)
	if err != nil {
		return uuid.Nil, err
	}
	return tokener.GetUserID(ctx, tokenString)
}
