package memory

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// Table operations. All methods mutate or read s directly; locking is the
// caller's responsibility (see Memory and txStore).

func (s *state) createAccount(acct *domain.Account) error {
	if _, ok := s.accounts[acct.ID]; ok {
		return store.ErrDuplicate
	}
	a := *acct
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = a
	return nil
}

func (s *state) getAccount(id uuid.UUID) (*domain.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *state) getAccountByStripeCustomer(customerID string) (*domain.Account, error) {
	for _, a := range s.accounts {
		if a.StripeCustomerID != "" && a.StripeCustomerID == customerID {
			out := a
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) setTier(id uuid.UUID, tier domain.Tier) error {
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrConditionFailed
	}
	a.Tier = tier
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *state) setStripeCustomer(id uuid.UUID, customerID string) error {
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrConditionFailed
	}
	a.StripeCustomerID = customerID
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *state) spendCredits(id uuid.UUID, amount int) error {
	a, ok := s.accounts[id]
	if !ok || a.Credits < amount {
		return store.ErrConditionFailed
	}
	a.Credits -= amount
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *state) grantCredits(id uuid.UUID, amount int) error {
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrConditionFailed
	}
	a.Credits += amount
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *state) claimFreeTrial(id uuid.UUID) error {
	a, ok := s.accounts[id]
	if !ok || a.FreeTrialUsed {
		return store.ErrConditionFailed
	}
	a.FreeTrialUsed = true
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *state) createArtifact(a *domain.Artifact) error {
	if _, ok := s.artifacts[a.ID]; ok {
		return store.ErrDuplicate
	}
	c := cloneArtifact(*a)
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.artifacts[c.ID] = c
	return nil
}

func (s *state) getArtifact(id uuid.UUID) (*domain.Artifact, error) {
	a, ok := s.artifacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := cloneArtifact(a)
	return &c, nil
}

func (s *state) getArtifactByFingerprint(accountID uuid.UUID, fingerprint string) (*domain.Artifact, error) {
	var best *domain.Artifact
	for _, a := range s.artifacts {
		if a.AccountID != accountID || a.Fingerprint != fingerprint {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) {
			c := cloneArtifact(a)
			best = &c
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (s *state) setInterpretation(id uuid.UUID, interp *domain.Interpretation) error {
	a, ok := s.artifacts[id]
	if !ok {
		return store.ErrConditionFailed
	}
	c := cloneArtifact(a)
	i := *interp
	c.Interpretation = &i
	c.UpdatedAt = time.Now().UTC()
	s.artifacts[id] = c
	return nil
}

func (s *state) listStaleComparisons(currentPeriod string, limit int) ([]*domain.Artifact, error) {
	var out []*domain.Artifact
	for _, a := range s.artifacts {
		if a.Type != domain.ActionComparison || a.LastCalculatedPeriod == "" {
			continue
		}
		if a.LastCalculatedPeriod < currentPeriod {
			c := cloneArtifact(a)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *state) setComparisonCalculated(id uuid.UUID, chartData json.RawMessage, period string) error {
	a, ok := s.artifacts[id]
	if !ok {
		return store.ErrConditionFailed
	}
	c := cloneArtifact(a)
	c.ChartData = append(json.RawMessage(nil), chartData...)
	c.LastCalculatedPeriod = period
	c.UpdatedAt = time.Now().UTC()
	s.artifacts[id] = c
	return nil
}

func (s *state) createSectionUnlock(u *domain.SectionUnlock) error {
	key := unlockKey(u.AccountID, u.ArtifactID, u.SectionKey)
	if _, ok := s.unlocks[key]; ok {
		return store.ErrDuplicate
	}
	c := *u
	c.CreatedAt = time.Now().UTC()
	s.unlocks[key] = c
	return nil
}

func (s *state) getSectionUnlock(accountID, artifactID uuid.UUID, sectionKey string) (*domain.SectionUnlock, error) {
	u, ok := s.unlocks[unlockKey(accountID, artifactID, sectionKey)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *state) refundSectionUnlock(id uuid.UUID) error {
	for key, u := range s.unlocks {
		if u.ID == id {
			if u.Refunded {
				return store.ErrConditionFailed
			}
			u.Refunded = true
			s.unlocks[key] = u
			return nil
		}
	}
	return store.ErrConditionFailed
}

func (s *state) reinstateSectionUnlock(id uuid.UUID, method domain.UnlockMethod, creditsUsed int) error {
	for key, u := range s.unlocks {
		if u.ID == id {
			if !u.Refunded {
				return store.ErrConditionFailed
			}
			u.Method = method
			u.CreditsUsed = creditsUsed
			u.Refunded = false
			s.unlocks[key] = u
			return nil
		}
	}
	return store.ErrConditionFailed
}

func (s *state) listSectionUnlocks(accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error) {
	var out []*domain.SectionUnlock
	for _, u := range s.unlocks {
		if u.AccountID == accountID && u.ArtifactID == artifactID {
			c := u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *state) createGrantRecord(g *domain.GrantRecord) error {
	key := grantKey(g.AccountID, g.PeriodStart)
	if _, ok := s.grants[key]; ok {
		return store.ErrDuplicate
	}
	c := *g
	c.CreatedAt = time.Now().UTC()
	s.grants[key] = c
	return nil
}

func (s *state) getGrantRecord(accountID uuid.UUID, periodStart time.Time) (*domain.GrantRecord, error) {
	g, ok := s.grants[grantKey(accountID, periodStart)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

func (s *state) getSubscriptionByExternalID(externalID string) (*domain.Subscription, error) {
	sub, ok := s.subs[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sub, nil
}

func (s *state) getSubscriptionByAccount(accountID uuid.UUID) (*domain.Subscription, error) {
	var latest *domain.Subscription
	for _, sub := range s.subs {
		sub := sub
		if sub.AccountID != accountID {
			continue
		}
		if latest == nil || sub.UpdatedAt.After(latest.UpdatedAt) {
			latest = &sub
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *state) upsertSubscription(sub *domain.Subscription) error {
	c := *sub
	now := time.Now().UTC()
	if existing, ok := s.subs[sub.ExternalID]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.subs[c.ExternalID] = c
	return nil
}

func (s *state) createPromoCode(p *domain.PromoCode) error {
	for _, existing := range s.promos {
		if existing.Code == p.Code {
			return store.ErrDuplicate
		}
	}
	c := *p
	c.CreatedAt = time.Now().UTC()
	s.promos[c.ID] = c
	return nil
}

func (s *state) getPromoByCode(code string) (*domain.PromoCode, error) {
	for _, p := range s.promos {
		if p.Code == code {
			c := p
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *state) claimPromoUse(id uuid.UUID) error {
	p, ok := s.promos[id]
	if !ok || p.CurrentUses >= p.MaxUses {
		return store.ErrConditionFailed
	}
	p.CurrentUses++
	s.promos[id] = p
	return nil
}

func (s *state) releasePromoUse(id uuid.UUID) error {
	p, ok := s.promos[id]
	if !ok || p.CurrentUses <= 0 {
		return store.ErrConditionFailed
	}
	p.CurrentUses--
	s.promos[id] = p
	return nil
}

func (s *state) getAction(t domain.ActionType) (*domain.PriceableAction, error) {
	a, ok := s.actions[t]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *state) upsertAction(a *domain.PriceableAction) error {
	s.actions[a.Type] = *a
	return nil
}

func (s *state) seedAction(a *domain.PriceableAction) error {
	if _, ok := s.actions[a.Type]; ok {
		return nil
	}
	s.actions[a.Type] = *a
	return nil
}
