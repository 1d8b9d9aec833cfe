package service

import (
	"context"
	"testing"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscriptionFixture struct {
	store   store.Store
	billing *stubBilling
	svc     SubscriptionService
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()
	st := seedStore(t)
	b := &stubBilling{}
	return &subscriptionFixture{
		store:   st,
		billing: b,
		svc:     NewSubscriptionService(st, b, testLogger()),
	}
}

func (f *subscriptionFixture) seedSubscriber(t *testing.T, tier domain.Tier) (*domain.Account, SubscriptionEvent) {
	t.Helper()
	acct := seedAccount(t, f.store, domain.TierFree, 0, true)
	require.NoError(t, f.store.SetStripeCustomer(context.Background(), acct.ID, "cus_"+acct.ID.String()[:8]))

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ev := SubscriptionEvent{
		ExternalID:  "sub_" + acct.ID.String()[:8],
		CustomerID:  "cus_" + acct.ID.String()[:8],
		Status:      domain.SubscriptionStatusActive,
		Tier:        tier,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
	}
	return acct, ev
}

func TestApplySubscriptionEvent_RecomputesTier(t *testing.T) {
	f := newSubscriptionFixture(t)
	acct, ev := f.seedSubscriber(t, domain.TierPro)
	ctx := context.Background()

	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))
	after, err := f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, after.Tier)

	// Cancelled keeps entitlement until period end.
	ev.Status = domain.SubscriptionStatusCancelled
	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))
	after, err = f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, after.Tier)

	// Expired drops back to free.
	ev.Status = domain.SubscriptionStatusExpired
	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))
	after, err = f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, after.Tier)
}

func TestApplySubscriptionEvent_UnknownCustomerIsAcknowledged(t *testing.T) {
	f := newSubscriptionFixture(t)

	err := f.svc.ApplySubscriptionEvent(context.Background(), SubscriptionEvent{
		ExternalID:  "sub_ghost",
		CustomerID:  "cus_ghost",
		Status:      domain.SubscriptionStatusActive,
		Tier:        domain.TierBasic,
		PeriodStart: time.Now(),
		PeriodEnd:   time.Now().AddDate(0, 1, 0),
	})
	assert.NoError(t, err)
}

func TestApplyInvoicePaid_GrantsOncePerPeriod(t *testing.T) {
	f := newSubscriptionFixture(t)
	acct, ev := f.seedSubscriber(t, domain.TierPro)
	ctx := context.Background()
	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))

	require.NoError(t, f.svc.ApplyInvoicePaid(ctx, ev.ExternalID, ev.PeriodStart, ev.PeriodEnd))
	after, err := f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, after.Credits)

	// At-least-once delivery: the same invoice event arrives again. The
	// grant log absorbs it with no second increment.
	require.NoError(t, f.svc.ApplyInvoicePaid(ctx, ev.ExternalID, ev.PeriodStart, ev.PeriodEnd))
	after, err = f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, after.Credits)

	rec, err := f.store.GetGrantRecord(ctx, acct.ID, ev.PeriodStart)
	require.NoError(t, err)
	assert.Equal(t, 30, rec.Credits)

	// A new period grants again.
	nextStart := ev.PeriodStart.AddDate(0, 1, 0)
	require.NoError(t, f.svc.ApplyInvoicePaid(ctx, ev.ExternalID, nextStart, nextStart.AddDate(0, 1, 0)))
	after, err = f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, after.Credits)
}

func TestApplyInvoicePaid_UnlimitedGetsNoGrant(t *testing.T) {
	f := newSubscriptionFixture(t)
	acct, ev := f.seedSubscriber(t, domain.TierUnlimited)
	ctx := context.Background()
	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))

	require.NoError(t, f.svc.ApplyInvoicePaid(ctx, ev.ExternalID, ev.PeriodStart, ev.PeriodEnd))

	after, err := f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Credits)
	assert.Equal(t, domain.TierUnlimited, after.Tier)

	// No ledger entry at all, not a zero-credit one.
	_, err = f.store.GetGrantRecord(ctx, acct.ID, ev.PeriodStart)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyInvoiceFailed_MarksPastDue(t *testing.T) {
	f := newSubscriptionFixture(t)
	acct, ev := f.seedSubscriber(t, domain.TierBasic)
	ctx := context.Background()
	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))

	require.NoError(t, f.svc.ApplyInvoiceFailed(ctx, ev.ExternalID))

	sub, err := f.store.GetSubscriptionByExternalID(ctx, ev.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, sub.Status)

	after, err := f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, after.Tier)
}

func TestStartCheckout_CreatesCustomerOnFirstUse(t *testing.T) {
	f := newSubscriptionFixture(t)
	acct := seedAccount(t, f.store, domain.TierFree, 0, true)
	ctx := context.Background()

	url, err := f.svc.StartCheckout(ctx, acct.ID, "price_pro", "https://app/success", "https://app/cancel")
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	after, err := f.store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, after.StripeCustomerID)

	_, err = f.svc.StartCheckout(ctx, acct.ID, "price_bogus", "https://app/success", "https://app/cancel")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestCancelAndReactivate_GoThroughBillingOnly(t *testing.T) {
	f := newSubscriptionFixture(t)
	acct, ev := f.seedSubscriber(t, domain.TierBasic)
	ctx := context.Background()
	require.NoError(t, f.svc.ApplySubscriptionEvent(ctx, ev))

	require.NoError(t, f.svc.Cancel(ctx, acct.ID))
	require.NoError(t, f.svc.Reactivate(ctx, acct.ID))
	assert.Equal(t, []string{ev.ExternalID}, f.billing.cancelled)
	assert.Equal(t, []string{ev.ExternalID}, f.billing.reactivated)

	// Local state is untouched until the webhook arrives.
	sub, err := f.store.GetSubscriptionByExternalID(ctx, ev.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
}
