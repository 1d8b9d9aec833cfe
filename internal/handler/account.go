// This file implements account registration and the balance endpoint.
//
// Routes:
//   - POST /api/accounts          -> Register (public)
//   - GET  /api/account/balance   -> GetBalance
package handler

import (
	"log/slog"
	"net/http"

	"github.com/astraea-labs/astraea/internal/middleware"
	"github.com/astraea-labs/astraea/internal/service"
	"github.com/google/uuid"
)

// AccountHandler handles account HTTP requests.
type AccountHandler struct {
	accounts service.AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// RegisterRoutes registers account routes on the provided mux.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, requireAccount func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/accounts", h.Register)
	mux.Handle("GET /api/account/balance", requireAccount(http.HandlerFunc(h.GetBalance)))
}

type registerRequest struct {
	Email string `json:"email"`
}

type accountResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Tier  string    `json:"tier"`
}

// Register handles POST /api/accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	acct, err := h.accounts.Register(r.Context(), req.Email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		ID:    acct.ID,
		Email: acct.Email,
		Tier:  string(acct.Tier),
	})
}

type balanceResponse struct {
	Credits       int    `json:"credits"`
	Tier          string `json:"tier"`
	FreeTrialUsed bool   `json:"free_trial_used"`
	Unlimited     bool   `json:"unlimited"`
}

// GetBalance handles GET /api/account/balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	balance, err := h.accounts.GetBalance(r.Context(), accountID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Credits:       balance.Credits,
		Tier:          string(balance.Tier),
		FreeTrialUsed: balance.FreeTrialUsed,
		Unlimited:     balance.Unlimited,
	})
}
