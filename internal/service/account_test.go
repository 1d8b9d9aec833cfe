package service

import (
	"context"
	"testing"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_NormalizesAndRejectsDuplicates(t *testing.T) {
	st := seedStore(t)
	svc := NewAccountService(st, testLogger())

	acct, err := svc.Register(context.Background(), "  Someone@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com", acct.Email)
	assert.Equal(t, domain.TierFree, acct.Tier)
	assert.Equal(t, 0, acct.Credits)

	_, err = svc.Register(context.Background(), "someone@example.com")
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestGrantCredits_AddsToBalance(t *testing.T) {
	st := seedStore(t)
	svc := NewAccountService(st, testLogger())
	acct := seedAccount(t, st, domain.TierBasic, 1, true)

	require.NoError(t, svc.GrantCredits(context.Background(), acct.ID, 4))

	bal, err := svc.GetBalance(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, bal.Credits)
}

func TestGrantCredits_UnknownAccountIsNotFound(t *testing.T) {
	st := seedStore(t)
	svc := NewAccountService(st, testLogger())

	err := svc.GrantCredits(context.Background(), uuid.New(), 3)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestGrantCredits_RejectsNonPositiveAmounts(t *testing.T) {
	st := seedStore(t)
	svc := NewAccountService(st, testLogger())
	acct := seedAccount(t, st, domain.TierBasic, 1, true)

	for _, amount := range []int{0, -1} {
		err := svc.GrantCredits(context.Background(), acct.ID, amount)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	}
}
