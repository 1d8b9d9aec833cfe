// This file implements the Stripe webhook handler.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/astraea-labs/astraea/internal/billing"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/metrics"
	"github.com/astraea-labs/astraea/internal/service"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler translates Stripe webhook events into reconciler calls.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC, no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events. Delivery is
// at-least-once: every path below is idempotent, so a replayed event is
// acknowledged without side effects.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)
	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChange(r, event, false)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionChange(r, event, true)
	case "invoice.payment_succeeded":
		err = h.handleInvoicePaid(r, event)
	case "invoice.payment_failed":
		err = h.handleInvoiceFailed(r, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}
	if err != nil {
		// A 5xx makes Stripe retry; idempotency guards make the retry safe.
		h.logger.Error("webhook processing failed", "type", event.Type, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleSubscriptionChange(r *http.Request, event stripe.Event, deleted bool) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return nil // malformed payload, retrying will not help
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return nil
	}

	tier := domain.TierFree
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if t := h.billing.TierForPriceID(sub.Items.Data[0].Price.ID); t != "" {
			tier = t
		}
	}

	status := translateStatus(&sub, deleted)
	return h.subscriptions.ApplySubscriptionEvent(r.Context(), service.SubscriptionEvent{
		ExternalID:  sub.ID,
		CustomerID:  sub.Customer.ID,
		Status:      status,
		Tier:        tier,
		PeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	})
}

func (h *WebhookHandler) handleInvoicePaid(r *http.Request, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice event", "error", err)
		return nil
	}
	if invoice.Subscription == nil {
		return nil // one-off invoice, nothing to reconcile
	}
	return h.subscriptions.ApplyInvoicePaid(r.Context(), invoice.Subscription.ID,
		time.Unix(invoice.PeriodStart, 0).UTC(), time.Unix(invoice.PeriodEnd, 0).UTC())
}

func (h *WebhookHandler) handleInvoiceFailed(r *http.Request, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice event", "error", err)
		return nil
	}
	if invoice.Subscription == nil {
		return nil
	}
	return h.subscriptions.ApplyInvoiceFailed(r.Context(), invoice.Subscription.ID)
}

// translateStatus maps Stripe's subscription status to the local lifecycle.
// cancel_at_period_end shows as "cancelled" locally: still entitled, will
// not renew.
func translateStatus(sub *stripe.Subscription, deleted bool) domain.SubscriptionStatus {
	if deleted {
		return domain.SubscriptionStatusExpired
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if sub.CancelAtPeriodEnd {
			return domain.SubscriptionStatusCancelled
		}
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusPastDue
	default:
		return domain.SubscriptionStatusExpired
	}
}
