// This file implements billing and promo endpoints.
//
// Routes:
//   - POST /api/billing/checkout    -> CreateCheckout
//   - POST /api/billing/portal      -> OpenPortal
//   - POST /api/billing/cancel      -> CancelSubscription
//   - POST /api/billing/reactivate  -> ReactivateSubscription
//   - POST /api/promos/redeem       -> RedeemPromo
package handler

import (
	"log/slog"
	"net/http"

	"github.com/astraea-labs/astraea/internal/middleware"
	"github.com/astraea-labs/astraea/internal/service"
)

// BillingHandler handles billing and promo HTTP requests.
type BillingHandler struct {
	subscriptions service.SubscriptionService
	promos        service.PromoService
	baseURL       string
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(subscriptions service.SubscriptionService, promos service.PromoService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		subscriptions: subscriptions,
		promos:        promos,
		baseURL:       baseURL,
		logger:        logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireAccount func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireAccount(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireAccount(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", requireAccount(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", requireAccount(http.HandlerFunc(h.ReactivateSubscription)))
	mux.Handle("POST /api/promos/redeem", requireAccount(http.HandlerFunc(h.RedeemPromo)))
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

// CreateCheckout handles POST /api/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	url, err := h.subscriptions.StartCheckout(r.Context(), accountID, req.PriceID,
		h.baseURL+"/billing/success", h.baseURL+"/billing/cancel")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// OpenPortal handles POST /api/billing/portal.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	url, err := h.subscriptions.OpenPortal(r.Context(), accountID, h.baseURL+"/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CancelSubscription handles POST /api/billing/cancel.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	if err := h.subscriptions.Cancel(r.Context(), accountID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Local state changes only when the provider's webhook arrives.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// ReactivateSubscription handles POST /api/billing/reactivate.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	if err := h.subscriptions.Reactivate(r.Context(), accountID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reactivation requested"})
}

type redeemRequest struct {
	Code string `json:"code"`
}

// RedeemPromo handles POST /api/promos/redeem.
func (h *BillingHandler) RedeemPromo(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.promos.Redeem(r.Context(), accountID, req.Code)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":              res.Code,
		"percent_off":       res.PercentOff,
		"promotion_code_id": res.PromotionCodeID,
	})
}
