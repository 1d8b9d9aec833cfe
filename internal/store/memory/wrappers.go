package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

// Locked wrappers: each public Memory method takes the store mutex and
// delegates to the state operation. txStore delegates without locking
// because the enclosing WithTx already holds the mutex.

func (m *Memory) CreateAccount(_ context.Context, acct *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createAccount(acct)
}

func (m *Memory) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAccount(id)
}

func (m *Memory) GetAccountByStripeCustomer(_ context.Context, customerID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAccountByStripeCustomer(customerID)
}

func (m *Memory) SetTier(_ context.Context, id uuid.UUID, tier domain.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setTier(id, tier)
}

func (m *Memory) SetStripeCustomer(_ context.Context, id uuid.UUID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setStripeCustomer(id, customerID)
}

func (m *Memory) SpendCredits(_ context.Context, id uuid.UUID, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.spendCredits(id, amount)
}

func (m *Memory) GrantCredits(_ context.Context, id uuid.UUID, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.grantCredits(id, amount)
}

func (m *Memory) ClaimFreeTrial(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.claimFreeTrial(id)
}

func (m *Memory) CreateArtifact(_ context.Context, a *domain.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createArtifact(a)
}

func (m *Memory) GetArtifact(_ context.Context, id uuid.UUID) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getArtifact(id)
}

func (m *Memory) GetArtifactByFingerprint(_ context.Context, accountID uuid.UUID, fingerprint string) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getArtifactByFingerprint(accountID, fingerprint)
}

func (m *Memory) SetInterpretation(_ context.Context, id uuid.UUID, interp *domain.Interpretation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setInterpretation(id, interp)
}

func (m *Memory) ListStaleComparisons(_ context.Context, currentPeriod string, limit int) ([]*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listStaleComparisons(currentPeriod, limit)
}

func (m *Memory) SetComparisonCalculated(_ context.Context, id uuid.UUID, chartData json.RawMessage, period string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setComparisonCalculated(id, chartData, period)
}

func (m *Memory) CreateSectionUnlock(_ context.Context, u *domain.SectionUnlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createSectionUnlock(u)
}

func (m *Memory) GetSectionUnlock(_ context.Context, accountID, artifactID uuid.UUID, sectionKey string) (*domain.SectionUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getSectionUnlock(accountID, artifactID, sectionKey)
}

func (m *Memory) RefundSectionUnlock(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.refundSectionUnlock(id)
}

func (m *Memory) ReinstateSectionUnlock(_ context.Context, id uuid.UUID, method domain.UnlockMethod, creditsUsed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.reinstateSectionUnlock(id, method, creditsUsed)
}

func (m *Memory) ListSectionUnlocks(_ context.Context, accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listSectionUnlocks(accountID, artifactID)
}

func (m *Memory) CreateGrantRecord(_ context.Context, g *domain.GrantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createGrantRecord(g)
}

func (m *Memory) GetGrantRecord(_ context.Context, accountID uuid.UUID, periodStart time.Time) (*domain.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getGrantRecord(accountID, periodStart)
}

func (m *Memory) GetSubscriptionByExternalID(_ context.Context, externalID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getSubscriptionByExternalID(externalID)
}

func (m *Memory) GetSubscriptionByAccount(_ context.Context, accountID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getSubscriptionByAccount(accountID)
}

func (m *Memory) UpsertSubscription(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertSubscription(sub)
}

func (m *Memory) CreatePromoCode(_ context.Context, p *domain.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createPromoCode(p)
}

func (m *Memory) GetPromoByCode(_ context.Context, code string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getPromoByCode(code)
}

func (m *Memory) ClaimPromoUse(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.claimPromoUse(id)
}

func (m *Memory) ReleasePromoUse(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.releasePromoUse(id)
}

func (m *Memory) GetAction(_ context.Context, t domain.ActionType) (*domain.PriceableAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAction(t)
}

func (m *Memory) UpsertAction(_ context.Context, a *domain.PriceableAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertAction(a)
}

func (m *Memory) SeedAction(_ context.Context, a *domain.PriceableAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.seedAction(a)
}

// Transactional wrappers.

func (t *txStore) CreateAccount(_ context.Context, acct *domain.Account) error {
	return t.st.createAccount(acct)
}

func (t *txStore) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	return t.st.getAccount(id)
}

func (t *txStore) GetAccountByStripeCustomer(_ context.Context, customerID string) (*domain.Account, error) {
	return t.st.getAccountByStripeCustomer(customerID)
}

func (t *txStore) SetTier(_ context.Context, id uuid.UUID, tier domain.Tier) error {
	return t.st.setTier(id, tier)
}

func (t *txStore) SetStripeCustomer(_ context.Context, id uuid.UUID, customerID string) error {
	return t.st.setStripeCustomer(id, customerID)
}

func (t *txStore) SpendCredits(_ context.Context, id uuid.UUID, amount int) error {
	return t.st.spendCredits(id, amount)
}

func (t *txStore) GrantCredits(_ context.Context, id uuid.UUID, amount int) error {
	return t.st.grantCredits(id, amount)
}

func (t *txStore) ClaimFreeTrial(_ context.Context, id uuid.UUID) error {
	return t.st.claimFreeTrial(id)
}

func (t *txStore) CreateArtifact(_ context.Context, a *domain.Artifact) error {
	return t.st.createArtifact(a)
}

func (t *txStore) GetArtifact(_ context.Context, id uuid.UUID) (*domain.Artifact, error) {
	return t.st.getArtifact(id)
}

func (t *txStore) GetArtifactByFingerprint(_ context.Context, accountID uuid.UUID, fingerprint string) (*domain.Artifact, error) {
	return t.st.getArtifactByFingerprint(accountID, fingerprint)
}

func (t *txStore) SetInterpretation(_ context.Context, id uuid.UUID, interp *domain.Interpretation) error {
	return t.st.setInterpretation(id, interp)
}

func (t *txStore) ListStaleComparisons(_ context.Context, currentPeriod string, limit int) ([]*domain.Artifact, error) {
	return t.st.listStaleComparisons(currentPeriod, limit)
}

func (t *txStore) SetComparisonCalculated(_ context.Context, id uuid.UUID, chartData json.RawMessage, period string) error {
	return t.st.setComparisonCalculated(id, chartData, period)
}

func (t *txStore) CreateSectionUnlock(_ context.Context, u *domain.SectionUnlock) error {
	return t.st.createSectionUnlock(u)
}

func (t *txStore) GetSectionUnlock(_ context.Context, accountID, artifactID uuid.UUID, sectionKey string) (*domain.SectionUnlock, error) {
	return t.st.getSectionUnlock(accountID, artifactID, sectionKey)
}

func (t *txStore) RefundSectionUnlock(_ context.Context, id uuid.UUID) error {
	return t.st.refundSectionUnlock(id)
}

func (t *txStore) ReinstateSectionUnlock(_ context.Context, id uuid.UUID, method domain.UnlockMethod, creditsUsed int) error {
	return t.st.reinstateSectionUnlock(id, method, creditsUsed)
}

func (t *txStore) ListSectionUnlocks(_ context.Context, accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error) {
	return t.st.listSectionUnlocks(accountID, artifactID)
}

func (t *txStore) CreateGrantRecord(_ context.Context, g *domain.GrantRecord) error {
	return t.st.createGrantRecord(g)
}

func (t *txStore) GetGrantRecord(_ context.Context, accountID uuid.UUID, periodStart time.Time) (*domain.GrantRecord, error) {
	return t.st.getGrantRecord(accountID, periodStart)
}

func (t *txStore) GetSubscriptionByExternalID(_ context.Context, externalID string) (*domain.Subscription, error) {
	return t.st.getSubscriptionByExternalID(externalID)
}

func (t *txStore) GetSubscriptionByAccount(_ context.Context, accountID uuid.UUID) (*domain.Subscription, error) {
	return t.st.getSubscriptionByAccount(accountID)
}

func (t *txStore) UpsertSubscription(_ context.Context, sub *domain.Subscription) error {
	return t.st.upsertSubscription(sub)
}

func (t *txStore) CreatePromoCode(_ context.Context, p *domain.PromoCode) error {
	return t.st.createPromoCode(p)
}

func (t *txStore) GetPromoByCode(_ context.Context, code string) (*domain.PromoCode, error) {
	return t.st.getPromoByCode(code)
}

func (t *txStore) ClaimPromoUse(_ context.Context, id uuid.UUID) error {
	return t.st.claimPromoUse(id)
}

func (t *txStore) ReleasePromoUse(_ context.Context, id uuid.UUID) error {
	return t.st.releasePromoUse(id)
}

func (t *txStore) GetAction(_ context.Context, a domain.ActionType) (*domain.PriceableAction, error) {
	return t.st.getAction(a)
}

func (t *txStore) UpsertAction(_ context.Context, a *domain.PriceableAction) error {
	return t.st.upsertAction(a)
}

func (t *txStore) SeedAction(_ context.Context, a *domain.PriceableAction) error {
	return t.st.seedAction(a)
}
