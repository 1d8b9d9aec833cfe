package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/astraea-labs/astraea/internal/ai/mock"
	"github.com/astraea-labs/astraea/internal/calc"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/lock"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifactFixture struct {
	store       store.Store
	engine      *calc.Mock
	interpreter *mock.Provider
	svc         ArtifactService
}

func newArtifactFixture(t *testing.T, locker lock.Locker) *artifactFixture {
	t.Helper()
	st := seedStore(t)
	engine := calc.NewMock()
	interp := mock.New(testLogger())
	if locker == nil {
		locker = lock.NewKeyed(lock.DefaultTTL)
	}
	return &artifactFixture{
		store:       st,
		engine:      engine,
		interpreter: interp,
		svc:         NewArtifactService(st, locker, engine, interp, testLogger()),
	}
}

func TestCreateReading_PaidChargesCost(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeModePaid, artifact.ChargeMode)
	assert.Equal(t, 2, artifact.CreditsCharged)
	assert.True(t, artifact.HasInterpretation())

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Credits)
}

func TestCreateReading_RejectsBeforeCollaborators(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 1, true) // cost is 2

	_, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(2),
	})
	require.Error(t, err)
	assert.True(t, domain.IsInsufficientCredits(err))

	detail := domain.ErrorDetail(err)
	assert.Equal(t, 2, detail["required_credits"])
	assert.Equal(t, 1, detail["available_credits"])

	// The whole point of resolve-first ordering: neither collaborator was
	// ever invoked for a request that could not be paid for.
	assert.EqualValues(t, 0, f.engine.Calls())
	assert.Equal(t, 0, f.interpreter.Calls())

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Credits)
}

func TestCreateReading_UnlimitedBypassesWithZeroBalance(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierUnlimited, 0, true)

	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(3),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeModeBypass, artifact.ChargeMode)
	assert.Equal(t, 0, artifact.CreditsCharged)

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Credits)
}

func TestCreateReading_FreeTrialThenPaid(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierFree, 2, false)

	first, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(4),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeModeFreeTrial, first.ChargeMode)
	assert.Equal(t, 0, first.CreditsCharged)

	second, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(5),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeModePaid, second.ChargeMode)
	assert.Equal(t, 2, second.CreditsCharged)

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, after.FreeTrialUsed)
	assert.Equal(t, 0, after.Credits)
}

func TestCreateReading_ConcurrentSpendChargesOnce(t *testing.T) {
	// The permissive locker lets every request through to the store, so the
	// conditional decrement is the only thing preventing a double spend.
	f := newArtifactFixture(t, permissiveLocker{})
	acct := seedAccount(t, f.store, domain.TierBasic, 2, true) // exactly one lifetime reading

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateReading(context.Background(), CreateReadingParams{
				AccountID: acct.ID,
				Action:    domain.ActionLifetimeReading,
				Subject:   testSubject(i + 1), // distinct fingerprints
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		code := domain.ErrorCode(err)
		assert.Contains(t, []string{domain.EPAYMENT, domain.ECONFLICT}, code)
	}
	assert.Equal(t, 1, succeeded)

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Credits)
}

func TestCreateReading_ConcurrentTrialClaimedOnce(t *testing.T) {
	f := newArtifactFixture(t, permissiveLocker{})
	acct := seedAccount(t, f.store, domain.TierFree, 2, false)

	var wg sync.WaitGroup
	results := make([]*domain.Artifact, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CreateReading(context.Background(), CreateReadingParams{
				AccountID: acct.ID,
				Action:    domain.ActionLifetimeReading,
				Subject:   testSubject(i + 10),
			})
		}(i)
	}
	wg.Wait()

	trial, paid := 0, 0
	for i := range results {
		require.NoError(t, errs[i])
		switch results[i].ChargeMode {
		case domain.ChargeModeFreeTrial:
			trial++
			assert.Equal(t, 0, results[i].CreditsCharged)
		case domain.ChargeModePaid:
			paid++
			assert.Equal(t, 2, results[i].CreditsCharged)
		default:
			t.Fatalf("unexpected charge mode %s", results[i].ChargeMode)
		}
	}
	assert.Equal(t, 1, trial)
	assert.Equal(t, 1, paid)

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, after.FreeTrialUsed)
	assert.Equal(t, 0, after.Credits)
}

func TestCreateReading_CacheReuseIsFreeAndKeepsProvenance(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 4, true)
	subject := testSubject(6)

	first, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   subject,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ChargeModePaid, first.ChargeMode)

	second, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   subject,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeModeCacheHit, second.ChargeMode)
	assert.Equal(t, 0, second.CreditsCharged)

	// Reuse carries the real provenance of the entry that produced the text.
	require.NotNil(t, second.Interpretation)
	assert.Equal(t, first.Interpretation.Provider, second.Interpretation.Provider)
	assert.Equal(t, first.Interpretation.Model, second.Interpretation.Model)

	// No second calculation, no second AI call, no second debit.
	assert.EqualValues(t, 1, f.engine.Calls())
	assert.Equal(t, 1, f.interpreter.Calls())
	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Credits)
}

func TestCreateReading_CalcFailureAbortsBeforeCharge(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	f.engine.Err = calc.ErrUnavailable
	_, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(7),
	})
	require.Error(t, err)
	assert.Equal(t, domain.EUPSTREAM, domain.ErrorCode(err))

	f.engine.Err = calc.ErrInvalidInput
	_, err = f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(8),
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Credits)
	assert.Equal(t, 0, f.interpreter.Calls())
}

func TestCreateReading_AIFailureCompletesChartOnly(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	f.interpreter.InterpretError = assert.AnError
	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(9),
	})
	require.NoError(t, err)
	assert.False(t, artifact.HasInterpretation())
	assert.NotEmpty(t, artifact.ChartData)

	// Still charged at the resolved cost; AI failure never reverses it.
	assert.Equal(t, 2, artifact.CreditsCharged)
	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Credits)
}

func TestCreateReading_LockContentionConflicts(t *testing.T) {
	locker := lock.NewKeyed(time.Minute)
	f := newArtifactFixture(t, locker)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	require.True(t, locker.TryAcquire(lock.CreateKey(acct.ID)))
	defer locker.Release(lock.CreateKey(acct.ID))

	_, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(11),
	})
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.EqualValues(t, 0, f.engine.Calls())
}

func TestCreateReading_ValidatesInput(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	tests := []struct {
		name   string
		params CreateReadingParams
	}{
		{
			name: "unknown action",
			params: CreateReadingParams{
				AccountID: acct.ID,
				Action:    domain.ActionSectionUnlock,
				Subject:   testSubject(12),
			},
		},
		{
			name: "bad birth date",
			params: CreateReadingParams{
				AccountID: acct.ID,
				Action:    domain.ActionLifetimeReading,
				Subject:   domain.BirthData{BirthDate: "not-a-date", BirthTime: "08:30", Timezone: "UTC"},
			},
		},
		{
			name: "annual without period",
			params: CreateReadingParams{
				AccountID: acct.ID,
				Action:    domain.ActionAnnualReading,
				Subject:   testSubject(13),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateReading(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
	assert.EqualValues(t, 0, f.engine.Calls())
}

func TestCreateComparison_ChargesAndMarksPeriod(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierPro, 3, true)

	artifact, err := f.svc.CreateComparison(context.Background(), CreateComparisonParams{
		AccountID: acct.ID,
		Subject:   testSubject(14),
		Partner:   testSubject(15),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionComparison, artifact.Type)
	assert.Equal(t, 2, artifact.CreditsCharged)
	assert.Equal(t, currentPeriod(time.Now()), artifact.LastCalculatedPeriod)
	require.NotNil(t, artifact.Partner)
}

func TestGetArtifact_OwnershipHidden(t *testing.T) {
	f := newArtifactFixture(t, nil)
	owner := seedAccount(t, f.store, domain.TierBasic, 5, true)
	other := seedAccount(t, f.store, domain.TierBasic, 5, true)

	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: owner.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(16),
	})
	require.NoError(t, err)

	_, err = f.svc.GetArtifact(context.Background(), other.ID, artifact.ID)
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestGenerateInterpretation_AttachesOnceAndIsIdempotent(t *testing.T) {
	f := newArtifactFixture(t, nil)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	f.interpreter.InterpretError = assert.AnError
	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(17),
	})
	require.NoError(t, err)
	require.False(t, artifact.HasInterpretation())
	callsAfterCreate := f.interpreter.Calls()

	// AI recovers, deferred generation attaches the interpretation at no
	// further cost.
	f.interpreter.InterpretError = nil
	got, err := f.svc.GenerateInterpretation(context.Background(), acct.ID, artifact.ID)
	require.NoError(t, err)
	assert.True(t, got.HasInterpretation())

	again, err := f.svc.GenerateInterpretation(context.Background(), acct.ID, artifact.ID)
	require.NoError(t, err)
	assert.True(t, again.HasInterpretation())
	assert.Equal(t, callsAfterCreate+1, f.interpreter.Calls())

	after, err := f.store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Credits) // only the original creation charge
}

func TestGenerateInterpretation_ContenderConvergesWithoutGenerating(t *testing.T) {
	locker := lock.NewKeyed(time.Minute)
	f := newArtifactFixture(t, locker)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	f.interpreter.InterpretError = assert.AnError
	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(18),
	})
	require.NoError(t, err)
	require.False(t, artifact.HasInterpretation())
	callsAfterCreate := f.interpreter.Calls()

	// Another request is mid-generation and holds the per-artifact lock.
	key := lock.UnlockAIKey(artifact.ID)
	require.True(t, locker.TryAcquire(key))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The holder finishes while the contender is waiting.
		time.Sleep(100 * time.Millisecond)
		err := f.store.SetInterpretation(context.Background(), artifact.ID, &domain.Interpretation{
			Sections:    map[string]string{"overview": "finished by holder"},
			Provider:    "mock",
			Model:       "mock-interpreter-1",
			GeneratedAt: time.Now().UTC(),
		})
		assert.NoError(t, err)
		locker.Release(key)
	}()

	got, err := f.svc.GenerateInterpretation(context.Background(), acct.ID, artifact.ID)
	require.NoError(t, err)
	assert.True(t, got.HasInterpretation())
	assert.Equal(t, "finished by holder", got.Interpretation.Sections["overview"])
	assert.Equal(t, callsAfterCreate, f.interpreter.Calls(),
		"the waiting request must not generate a second interpretation")
	<-done
}

func TestGenerateInterpretation_WaitIsBoundedByContext(t *testing.T) {
	locker := lock.NewKeyed(time.Minute)
	f := newArtifactFixture(t, locker)
	acct := seedAccount(t, f.store, domain.TierBasic, 5, true)

	f.interpreter.InterpretError = assert.AnError
	artifact, err := f.svc.CreateReading(context.Background(), CreateReadingParams{
		AccountID: acct.ID,
		Action:    domain.ActionLifetimeReading,
		Subject:   testSubject(19),
	})
	require.NoError(t, err)

	// The holder never finishes; the contender gives up with the context.
	key := lock.UnlockAIKey(artifact.ID)
	require.True(t, locker.TryAcquire(key))
	defer locker.Release(key)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.svc.GenerateInterpretation(ctx, acct.ID, artifact.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
