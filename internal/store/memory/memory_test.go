package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T, m *Memory, credits int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := m.CreateAccount(context.Background(), &domain.Account{
		ID: id, Email: id.String() + "@example.com", Tier: domain.TierBasic,
		Credits: credits, FreeTrialUsed: true,
	})
	require.NoError(t, err)
	return id
}

func TestSpendCreditsConditional(t *testing.T) {
	ctx := context.Background()
	m := New()
	id := newAccount(t, m, 2)

	require.NoError(t, m.SpendCredits(ctx, id, 2))

	// Balance is now zero; a further spend must fail without applying.
	err := m.SpendCredits(ctx, id, 1)
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	acct, err := m.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, acct.Credits)
}

func TestConcurrentSpendNoDoubleSpend(t *testing.T) {
	ctx := context.Background()
	m := New()
	id := newAccount(t, m, 2)

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.SpendCredits(ctx, id, 2)
		}()
	}
	wg.Wait()
	close(results)

	var ok, failed int
	for err := range results {
		if err == nil {
			ok++
		} else if errors.Is(err, store.ErrConditionFailed) {
			failed++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one spend should succeed")
	assert.Equal(t, n-1, failed)

	acct, err := m.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, acct.Credits)
}

func TestClaimFreeTrialOnce(t *testing.T) {
	ctx := context.Background()
	m := New()
	id := uuid.New()
	require.NoError(t, m.CreateAccount(ctx, &domain.Account{ID: id, Tier: domain.TierFree}))

	require.NoError(t, m.ClaimFreeTrial(ctx, id))
	assert.ErrorIs(t, m.ClaimFreeTrial(ctx, id), store.ErrConditionFailed)
}

func TestWithTxRollsBackAllMutations(t *testing.T) {
	ctx := context.Background()
	m := New()
	id := newAccount(t, m, 5)

	boom := errors.New("artifact insert failed")
	err := m.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SpendCredits(ctx, id, 3); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acct, err := m.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, acct.Credits, "failed tx must not change balance")
}

func TestWithTxCommits(t *testing.T) {
	ctx := context.Background()
	m := New()
	id := newAccount(t, m, 5)
	artifactID := uuid.New()

	err := m.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SpendCredits(ctx, id, 2); err != nil {
			return err
		}
		return tx.CreateArtifact(ctx, &domain.Artifact{
			ID: artifactID, AccountID: id, Type: domain.ActionLifetimeReading,
			ChargeMode: domain.ChargeModePaid, CreditsCharged: 2,
		})
	})
	require.NoError(t, err)

	acct, err := m.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, acct.Credits)

	_, err = m.GetArtifact(ctx, artifactID)
	assert.NoError(t, err)
}

func TestGrantRecordUniquePerPeriod(t *testing.T) {
	ctx := context.Background()
	m := New()
	id := newAccount(t, m, 0)
	period := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.CreateGrantRecord(ctx, &domain.GrantRecord{
		ID: uuid.New(), AccountID: id, PeriodStart: period, Credits: 10,
	}))
	err := m.CreateGrantRecord(ctx, &domain.GrantRecord{
		ID: uuid.New(), AccountID: id, PeriodStart: period, Credits: 10,
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestSectionUnlockUnique(t *testing.T) {
	ctx := context.Background()
	m := New()
	accountID, artifactID := uuid.New(), uuid.New()

	u := &domain.SectionUnlock{
		ID: uuid.New(), AccountID: accountID, ArtifactID: artifactID,
		SectionKey: domain.SectionCareer, Method: domain.UnlockMethodCredit, CreditsUsed: 1,
	}
	require.NoError(t, m.CreateSectionUnlock(ctx, u))

	dup := *u
	dup.ID = uuid.New()
	assert.ErrorIs(t, m.CreateSectionUnlock(ctx, &dup), store.ErrDuplicate)
}

func TestPromoClaimBound(t *testing.T) {
	ctx := context.Background()
	m := New()
	p := &domain.PromoCode{
		ID: uuid.New(), Code: "ONEUSE", MaxUses: 1, Active: true,
		ValidFrom: time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, m.CreatePromoCode(ctx, p))

	require.NoError(t, m.ClaimPromoUse(ctx, p.ID))
	assert.ErrorIs(t, m.ClaimPromoUse(ctx, p.ID), store.ErrConditionFailed)

	// Compensating release restores the pre-claim counter.
	require.NoError(t, m.ReleasePromoUse(ctx, p.ID))
	got, err := m.GetPromoByCode(ctx, "ONEUSE")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentUses)
}

func TestSeedActionKeepsExistingPrices(t *testing.T) {
	ctx := context.Background()
	m := New()

	// An admin has already repriced the action.
	require.NoError(t, m.UpsertAction(ctx, &domain.PriceableAction{
		Type: domain.ActionLifetimeReading, CreditCost: 5,
	}))

	// Startup seeding must not revert it.
	for _, a := range domain.DefaultCatalog() {
		require.NoError(t, m.SeedAction(ctx, &a))
	}

	got, err := m.GetAction(ctx, domain.ActionLifetimeReading)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CreditCost)

	// Actions with no existing row are inserted.
	seeded, err := m.GetAction(ctx, domain.ActionComparison)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded.CreditCost)
}
