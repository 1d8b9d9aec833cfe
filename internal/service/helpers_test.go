package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/astraea-labs/astraea/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedStore returns a memory store with the default pricing catalog loaded.
func seedStore(t *testing.T) *memory.Memory {
	t.Helper()
	st := memory.New()
	for _, a := range domain.DefaultCatalog() {
		a := a
		require.NoError(t, st.UpsertAction(context.Background(), &a))
	}
	return st
}

func seedAccount(t *testing.T, st store.Store, tier domain.Tier, credits int, trialUsed bool) *domain.Account {
	t.Helper()
	acct := &domain.Account{
		ID:            uuid.New(),
		Email:         fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Tier:          tier,
		Credits:       credits,
		FreeTrialUsed: trialUsed,
	}
	require.NoError(t, st.CreateAccount(context.Background(), acct))
	return acct
}

func markUnlockRefunded(t *testing.T, st store.Store, unlockID uuid.UUID) {
	t.Helper()
	require.NoError(t, st.RefundSectionUnlock(context.Background(), unlockID))
}

func testSubject(day int) domain.BirthData {
	return domain.BirthData{
		Name:      "Subject",
		BirthDate: fmt.Sprintf("1990-03-%02d", day),
		BirthTime: "08:30",
		Timezone:  "Asia/Shanghai",
		Gender:    "female",
	}
}

// permissiveLocker always grants acquisition. Concurrency tests use it so
// competing requests reach the store's conditional updates instead of being
// serialized away by the advisory lock.
type permissiveLocker struct{}

func (permissiveLocker) TryAcquire(string) bool { return true }
func (permissiveLocker) Release(string)         {}

// stubBilling is a billing.Service double recording calls.
type stubBilling struct {
	mu sync.Mutex

	CouponErr   error
	couponCalls int
	cancelled   []string
	reactivated []string
}

func (b *stubBilling) CreateCustomer(email, name string) (string, error) {
	return "cus_" + uuid.NewString()[:8], nil
}

func (b *stubBilling) CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error) {
	return "https://checkout.example.com/" + priceID, nil
}

func (b *stubBilling) CreatePortalSession(customerID, returnURL string) (string, error) {
	return "https://portal.example.com/" + customerID, nil
}

func (b *stubBilling) CancelSubscription(subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, subscriptionID)
	return nil
}

func (b *stubBilling) ReactivateSubscription(subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reactivated = append(b.reactivated, subscriptionID)
	return nil
}

func (b *stubBilling) CreatePromotionCoupon(code string, percentOff int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.couponCalls++
	if b.CouponErr != nil {
		return "", b.CouponErr
	}
	return "promo_" + code, nil
}

func (b *stubBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func (b *stubBilling) TierForPriceID(priceID string) domain.Tier {
	switch priceID {
	case "price_basic":
		return domain.TierBasic
	case "price_pro":
		return domain.TierPro
	case "price_unlimited":
		return domain.TierUnlimited
	default:
		return ""
	}
}

func (b *stubBilling) CouponCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.couponCalls
}
