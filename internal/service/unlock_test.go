package service

import (
	"context"
	"sync"
	"testing"

	"github.com/astraea-labs/astraea/internal/ai/mock"
	"github.com/astraea-labs/astraea/internal/calc"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/lock"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unlockFixture struct {
	store store.Store
	svc   UnlockService
	acct  *domain.Account
	art   *domain.Artifact
}

// newUnlockFixture seeds an account with the given balance and one
// interpreted reading to unlock sections on.
func newUnlockFixture(t *testing.T, credits int) *unlockFixture {
	t.Helper()
	st := seedStore(t)
	acct := seedAccount(t, st, domain.TierBasic, credits+2, true)

	artifacts := NewArtifactService(st, lock.NewKeyed(lock.DefaultTTL), calc.NewMock(), mock.New(testLogger()), testLogger())
	art, err := artifacts.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(20),
	})
	require.NoError(t, err) // costs 2, leaving the requested balance

	return &unlockFixture{
		store: st,
		svc:   NewUnlockService(st, testLogger()),
		acct:  acct,
		art:   art,
	}
}

func (f *unlockFixture) balance(t *testing.T) int {
	t.Helper()
	acct, err := f.store.GetAccount(context.Background(), f.acct.ID)
	require.NoError(t, err)
	return acct.Credits
}

func TestUnlockSection_CreditChargesOnce(t *testing.T) {
	f := newUnlockFixture(t, 3)

	res, err := f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, domain.SectionCareer, domain.UnlockMethodCredit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreditsUsed)
	assert.False(t, res.AlreadyUnlocked)
	assert.Equal(t, 2, f.balance(t))

	// Retry or double-click: success, zero charge, no second record.
	again, err := f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, domain.SectionCareer, domain.UnlockMethodCredit)
	require.NoError(t, err)
	assert.Equal(t, 0, again.CreditsUsed)
	assert.True(t, again.AlreadyUnlocked)
	assert.Equal(t, res.Unlock.ID, again.Unlock.ID)
	assert.Equal(t, 2, f.balance(t))
}

func TestUnlockSection_AdRewardIsFree(t *testing.T) {
	f := newUnlockFixture(t, 0)

	res, err := f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, domain.SectionWealth, domain.UnlockMethodAdReward)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CreditsUsed)
	assert.Equal(t, domain.UnlockMethodAdReward, res.Unlock.Method)
	assert.Equal(t, 0, f.balance(t))
}

func TestUnlockSection_InsufficientCredits(t *testing.T) {
	f := newUnlockFixture(t, 0)

	_, err := f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, domain.SectionHealth, domain.UnlockMethodCredit)
	require.Error(t, err)
	assert.True(t, domain.IsInsufficientCredits(err))

	detail := domain.ErrorDetail(err)
	assert.Equal(t, 1, detail["required_credits"])
	assert.Equal(t, 0, detail["available_credits"])
}

func TestUnlockSection_ValidationChain(t *testing.T) {
	f := newUnlockFixture(t, 3)
	stranger := seedAccount(t, f.store, domain.TierBasic, 3, true)

	t.Run("bad method", func(t *testing.T) {
		_, err := f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, domain.SectionCareer, "gift")
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
	t.Run("unknown section", func(t *testing.T) {
		_, err := f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, "destiny", domain.UnlockMethodCredit)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
	t.Run("foreign artifact reads as absent", func(t *testing.T) {
		_, err := f.svc.UnlockSection(context.Background(), stranger.ID, f.art.ID, domain.SectionCareer, domain.UnlockMethodCredit)
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})
	// None of the rejections above touched the balance.
	assert.Equal(t, 3, f.balance(t))
}

func TestUnlockSection_ChartOnlyArtifactRejected(t *testing.T) {
	st := seedStore(t)
	acct := seedAccount(t, st, domain.TierBasic, 5, true)

	interp := mock.New(testLogger())
	interp.InterpretError = assert.AnError
	artifacts := NewArtifactService(st, lock.NewKeyed(lock.DefaultTTL), calc.NewMock(), interp, testLogger())
	art, err := artifacts.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(21),
	})
	require.NoError(t, err)
	require.False(t, art.HasInterpretation())

	svc := NewUnlockService(st, testLogger())
	_, err = svc.UnlockSection(context.Background(), acct.ID, art.ID, domain.SectionCareer, domain.UnlockMethodCredit)
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestUnlockSection_RefundedRechargesInPlace(t *testing.T) {
	f := newUnlockFixture(t, 3)
	ctx := context.Background()

	res, err := f.svc.UnlockSection(ctx, f.acct.ID, f.art.ID, domain.SectionTiming, domain.UnlockMethodCredit)
	require.NoError(t, err)
	require.Equal(t, 2, f.balance(t))

	// Simulate a support refund, which marks the record instead of deleting
	// it: the uniqueness key stays occupied.
	markUnlockRefunded(t, f.store, res.Unlock.ID)

	again, err := f.svc.UnlockSection(ctx, f.acct.ID, f.art.ID, domain.SectionTiming, domain.UnlockMethodCredit)
	require.NoError(t, err)
	assert.Equal(t, 1, again.CreditsUsed)
	assert.False(t, again.AlreadyUnlocked)
	assert.Equal(t, res.Unlock.ID, again.Unlock.ID)
	assert.False(t, again.Unlock.Refunded)
	assert.Equal(t, 1, f.balance(t))
}

func TestUnlockSection_ConcurrentChargesOnce(t *testing.T) {
	f := newUnlockFixture(t, 3)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*UnlockResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.UnlockSection(context.Background(), f.acct.ID, f.art.ID, domain.SectionRelationships, domain.UnlockMethodCredit)
		}(i)
	}
	wg.Wait()

	charged := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].CreditsUsed > 0 {
			charged++
		}
	}
	assert.Equal(t, 1, charged)
	assert.Equal(t, 2, f.balance(t))

	active, err := f.svc.ListUnlocks(context.Background(), f.acct.ID, f.art.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestListUnlocks_ExcludesRefunded(t *testing.T) {
	f := newUnlockFixture(t, 3)
	ctx := context.Background()

	a, err := f.svc.UnlockSection(ctx, f.acct.ID, f.art.ID, domain.SectionCareer, domain.UnlockMethodCredit)
	require.NoError(t, err)
	_, err = f.svc.UnlockSection(ctx, f.acct.ID, f.art.ID, domain.SectionWealth, domain.UnlockMethodCredit)
	require.NoError(t, err)

	markUnlockRefunded(t, f.store, a.Unlock.ID)

	active, err := f.svc.ListUnlocks(ctx, f.acct.ID, f.art.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.SectionWealth, active[0].SectionKey)
}
