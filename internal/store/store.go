// Package store defines the persistence contract for the credit and
// entitlement core.
//
// The contract is built around three primitives the business layer relies on:
//   - conditional updates that report whether the predicate held
//     (ErrConditionFailed when it did not), closing check-then-act races
//   - multi-statement atomic transactions via WithTx
//   - uniqueness constraints surfaced as ErrDuplicate, used as idempotency
//     keys for grants and section unlocks
//
// Two implementations exist: postgres (pgx) for production and memory for
// tests and development. Both honor the same conditional-update semantics.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate indicates a uniqueness constraint was violated.
	// Callers use this to detect idempotent replays.
	ErrDuplicate = errors.New("store: duplicate key")

	// ErrConditionFailed indicates a conditional update matched zero rows:
	// the guarding predicate did not hold at execution time.
	ErrConditionFailed = errors.New("store: condition not met")
)

// AccountStore holds accounts and the three atomic ledger primitives.
// The credit balance is mutated only through SpendCredits, GrantCredits and
// ClaimFreeTrial; there is deliberately no plain balance setter.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAccountByStripeCustomer(ctx context.Context, customerID string) (*domain.Account, error)
	SetTier(ctx context.Context, id uuid.UUID, tier domain.Tier) error
	SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error

	// SpendCredits decrements the balance by amount where balance >= amount.
	// Returns ErrConditionFailed when the balance is insufficient, even if a
	// prior read suggested otherwise.
	SpendCredits(ctx context.Context, id uuid.UUID, amount int) error

	// GrantCredits increments the balance unconditionally.
	GrantCredits(ctx context.Context, id uuid.UUID, amount int) error

	// ClaimFreeTrial sets free_trial_used where it is still false.
	// Returns ErrConditionFailed when the trial was already claimed.
	ClaimFreeTrial(ctx context.Context, id uuid.UUID) error
}

// ArtifactStore holds readings and comparisons.
type ArtifactStore interface {
	CreateArtifact(ctx context.Context, a *domain.Artifact) error
	GetArtifact(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)

	// GetArtifactByFingerprint finds the account's prior artifact for the
	// same computed request fingerprint, for cache-reuse resolution.
	GetArtifactByFingerprint(ctx context.Context, accountID uuid.UUID, fingerprint string) (*domain.Artifact, error)

	SetInterpretation(ctx context.Context, id uuid.UUID, interp *domain.Interpretation) error

	// ListStaleComparisons returns comparisons whose last calculated period
	// is behind currentPeriod, for the background recalculator.
	ListStaleComparisons(ctx context.Context, currentPeriod string, limit int) ([]*domain.Artifact, error)
	SetComparisonCalculated(ctx context.Context, id uuid.UUID, chartData json.RawMessage, period string) error
}

// UnlockStore holds the section-unlock sub-ledger.
type UnlockStore interface {
	// CreateSectionUnlock inserts the unique (account, artifact, section)
	// record. Returns ErrDuplicate when the unlock already exists.
	CreateSectionUnlock(ctx context.Context, u *domain.SectionUnlock) error
	GetSectionUnlock(ctx context.Context, accountID, artifactID uuid.UUID, sectionKey string) (*domain.SectionUnlock, error)
	ListSectionUnlocks(ctx context.Context, accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error)

	// RefundSectionUnlock marks the unlock refunded, hiding the section
	// again without vacating the uniqueness key. Returns ErrConditionFailed
	// when the record is already refunded.
	RefundSectionUnlock(ctx context.Context, id uuid.UUID) error

	// ReinstateSectionUnlock re-activates a refunded unlock record in place,
	// since the uniqueness key prevents a second insert. Returns
	// ErrConditionFailed when the record is not currently refunded.
	ReinstateSectionUnlock(ctx context.Context, id uuid.UUID, method domain.UnlockMethod, creditsUsed int) error
}

// GrantLogStore holds the idempotent period-grant log.
type GrantLogStore interface {
	// CreateGrantRecord inserts the unique (account, period_start) record.
	// Returns ErrDuplicate when this period was already credited.
	CreateGrantRecord(ctx context.Context, g *domain.GrantRecord) error
	GetGrantRecord(ctx context.Context, accountID uuid.UUID, periodStart time.Time) (*domain.GrantRecord, error)
}

// SubscriptionStore holds billing subscriptions.
type SubscriptionStore interface {
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error)

	// GetSubscriptionByAccount returns the account's most recently updated
	// subscription.
	GetSubscriptionByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Subscription, error)

	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
}

// PromoStore holds promo codes and the atomic use-counter claim.
type PromoStore interface {
	CreatePromoCode(ctx context.Context, p *domain.PromoCode) error
	GetPromoByCode(ctx context.Context, code string) (*domain.PromoCode, error)

	// ClaimPromoUse increments current_uses where current_uses < max_uses.
	// Returns ErrConditionFailed when the code is exhausted.
	ClaimPromoUse(ctx context.Context, id uuid.UUID) error

	// ReleasePromoUse is the compensating decrement for a claim whose
	// downstream step failed. It never drives the counter below zero.
	ReleasePromoUse(ctx context.Context, id uuid.UUID) error
}

// ActionStore holds the pricing catalog. Read-only to this core apart from
// seeding; an external admin surface maintains prices.
type ActionStore interface {
	GetAction(ctx context.Context, t domain.ActionType) (*domain.PriceableAction, error)
	UpsertAction(ctx context.Context, a *domain.PriceableAction) error

	// SeedAction inserts the action only when no row exists for its type.
	// Startup seeding uses this so restarts never revert admin price changes.
	SeedAction(ctx context.Context, a *domain.PriceableAction) error
}

// Store is the full persistence contract.
type Store interface {
	AccountStore
	ArtifactStore
	UnlockStore
	GrantLogStore
	SubscriptionStore
	PromoStore
	ActionStore

	// WithTx runs fn inside one atomic transaction. Every Store call made on
	// the value passed to fn commits or rolls back as a unit. Nested WithTx
	// joins the enclosing transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
