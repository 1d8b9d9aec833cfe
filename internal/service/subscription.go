package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/astraea-labs/astraea/internal/billing"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/metrics"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionEvent is a normalized billing lifecycle event. The webhook
// handler translates provider payloads into this shape so the reconciler
// stays independent of the billing provider's types.
type SubscriptionEvent struct {
	ExternalID  string // provider subscription id
	CustomerID  string // provider customer id
	Status      domain.SubscriptionStatus
	Tier        domain.Tier
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// SubscriptionService reconciles external billing events into local
// subscription and tier state, and proxies user-facing billing requests.
// Local state changes only ever come from events: Cancel and Reactivate
// call the billing provider and return, and the eventual webhook applies
// the transition.
type SubscriptionService interface {
	// ApplySubscriptionEvent upserts the subscription row and recomputes the
	// account tier from the new status.
	ApplySubscriptionEvent(ctx context.Context, ev SubscriptionEvent) error

	// ApplyInvoicePaid marks the subscription active for the new period and
	// grants the plan's period credit allowance, guarded by the grant log.
	// A redelivered event for an already-credited period is a no-op.
	ApplyInvoicePaid(ctx context.Context, externalID string, periodStart, periodEnd time.Time) error

	// ApplyInvoiceFailed transitions the subscription to past_due.
	ApplyInvoiceFailed(ctx context.Context, externalID string) error

	// StartCheckout creates a provider checkout session for the given price,
	// creating the provider customer first if the account has none.
	StartCheckout(ctx context.Context, accountID uuid.UUID, priceID, successURL, cancelURL string) (string, error)

	// OpenPortal creates a provider billing-portal session.
	OpenPortal(ctx context.Context, accountID uuid.UUID, returnURL string) (string, error)

	// Cancel requests cancellation at period end via the billing provider.
	Cancel(ctx context.Context, accountID uuid.UUID) error

	// Reactivate removes a pending cancellation via the billing provider.
	Reactivate(ctx context.Context, accountID uuid.UUID) error
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store   store.Store
	billing billing.Service
	logger  *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(st store.Store, b billing.Service, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{store: st, billing: b, logger: logger}
}

func (s *subscriptionService) ApplySubscriptionEvent(ctx context.Context, ev SubscriptionEvent) error {
	const op = "subscription.apply_event"

	if ev.ExternalID == "" {
		return domain.Invalid(op, "event is missing the subscription id")
	}
	if !ev.Status.Valid() {
		return domain.Invalid(op, "unknown subscription status")
	}

	acct, err := s.store.GetAccountByStripeCustomer(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Event for a customer we never issued. Acknowledge so the
			// provider stops retrying.
			s.logger.Warn("subscription event for unknown customer",
				"customer_id", ev.CustomerID, "subscription_id", ev.ExternalID)
			return nil
		}
		return domain.Internal(err, op, "failed to resolve customer")
	}

	sub := &domain.Subscription{
		ID:          uuid.New(),
		AccountID:   acct.ID,
		ExternalID:  ev.ExternalID,
		Status:      ev.Status,
		Tier:        ev.Tier,
		PeriodStart: ev.PeriodStart,
		PeriodEnd:   ev.PeriodEnd,
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpsertSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.SetTier(ctx, acct.ID, sub.EffectiveTier())
	})
	if err != nil {
		return domain.Internal(err, op, "failed to apply subscription transition")
	}

	s.logger.Info("subscription transition applied",
		"account_id", acct.ID,
		"subscription_id", ev.ExternalID,
		"status", ev.Status,
		"tier", sub.EffectiveTier(),
	)
	return nil
}

func (s *subscriptionService) ApplyInvoicePaid(ctx context.Context, externalID string, periodStart, periodEnd time.Time) error {
	const op = "subscription.invoice_paid"

	sub, err := s.store.GetSubscriptionByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Invoice for a subscription we have not seen yet; the created
			// event usually arrives moments later and the provider retries.
			s.logger.Warn("invoice paid for unknown subscription", "subscription_id", externalID)
			return nil
		}
		return domain.Internal(err, op, "failed to load subscription")
	}

	sub.Status = domain.SubscriptionStatusActive
	sub.PeriodStart = periodStart
	sub.PeriodEnd = periodEnd

	allowance := domain.MonthlyCreditAllowance(sub.Tier)

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpsertSubscription(ctx, sub); err != nil {
			return err
		}
		if err := tx.SetTier(ctx, sub.AccountID, sub.EffectiveTier()); err != nil {
			return err
		}
		if allowance <= 0 {
			// Unlimited and free plans get no ledger entry at all; bypass is
			// decided at the resolver, not funded through the balance.
			return nil
		}
		if err := tx.CreateGrantRecord(ctx, &domain.GrantRecord{
			ID:          uuid.New(),
			AccountID:   sub.AccountID,
			PeriodStart: periodStart,
			Credits:     allowance,
		}); err != nil {
			return err
		}
		return tx.GrantCredits(ctx, sub.AccountID, allowance)
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Redelivery of an already-credited period. The grant log rolled the
		// whole transaction back, so nothing was double-granted.
		metrics.GrantDuplicatesTotal.Inc()
		s.logger.Info("duplicate period grant skipped",
			"account_id", sub.AccountID, "period_start", periodStart)
		return nil
	}
	if err != nil {
		return domain.Internal(err, op, "failed to apply invoice")
	}

	if allowance > 0 {
		metrics.CreditsGrantedTotal.Add(float64(allowance))
		s.logger.Info("period credits granted",
			"account_id", sub.AccountID, "credits", allowance, "period_start", periodStart)
	}
	return nil
}

func (s *subscriptionService) ApplyInvoiceFailed(ctx context.Context, externalID string) error {
	const op = "subscription.invoice_failed"

	sub, err := s.store.GetSubscriptionByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("invoice failed for unknown subscription", "subscription_id", externalID)
			return nil
		}
		return domain.Internal(err, op, "failed to load subscription")
	}

	sub.Status = domain.SubscriptionStatusPastDue

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpsertSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.SetTier(ctx, sub.AccountID, sub.EffectiveTier())
	})
	if err != nil {
		return domain.Internal(err, op, "failed to apply payment failure")
	}

	s.logger.Info("subscription past due", "account_id", sub.AccountID, "subscription_id", externalID)
	return nil
}

func (s *subscriptionService) StartCheckout(ctx context.Context, accountID uuid.UUID, priceID, successURL, cancelURL string) (string, error) {
	const op = "subscription.checkout"

	if s.billing.TierForPriceID(priceID) == "" {
		return "", domain.Invalid(op, "unknown price id")
	}

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.NotFound(op, "account", accountID.String())
		}
		return "", domain.Internal(err, op, "failed to load account")
	}

	customerID := acct.StripeCustomerID
	if customerID == "" {
		customerID, err = s.billing.CreateCustomer(acct.Email, "")
		if err != nil {
			return "", domain.Upstream(err, op, "failed to create billing customer")
		}
		if err := s.store.SetStripeCustomer(ctx, accountID, customerID); err != nil {
			return "", domain.Internal(err, op, "failed to save billing customer")
		}
	}

	url, err := s.billing.CreateCheckoutSession(customerID, priceID, successURL, cancelURL)
	if err != nil {
		return "", domain.Upstream(err, op, "failed to create checkout session")
	}
	return url, nil
}

func (s *subscriptionService) OpenPortal(ctx context.Context, accountID uuid.UUID, returnURL string) (string, error) {
	const op = "subscription.portal"

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.NotFound(op, "account", accountID.String())
		}
		return "", domain.Internal(err, op, "failed to load account")
	}
	if acct.StripeCustomerID == "" {
		return "", domain.Invalid(op, "account has no billing profile yet")
	}

	url, err := s.billing.CreatePortalSession(acct.StripeCustomerID, returnURL)
	if err != nil {
		return "", domain.Upstream(err, op, "failed to create portal session")
	}
	return url, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, accountID uuid.UUID) error {
	const op = "subscription.cancel"

	sub, err := s.currentSubscription(ctx, op, accountID)
	if err != nil {
		return err
	}
	if err := s.billing.CancelSubscription(sub.ExternalID); err != nil {
		return domain.Upstream(err, op, "failed to request cancellation")
	}
	return nil
}

func (s *subscriptionService) Reactivate(ctx context.Context, accountID uuid.UUID) error {
	const op = "subscription.reactivate"

	sub, err := s.currentSubscription(ctx, op, accountID)
	if err != nil {
		return err
	}
	if err := s.billing.ReactivateSubscription(sub.ExternalID); err != nil {
		return domain.Upstream(err, op, "failed to request reactivation")
	}
	return nil
}

func (s *subscriptionService) currentSubscription(ctx context.Context, op string, accountID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscriptionByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "subscription", accountID.String())
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return sub, nil
}
