package postgres

import (
	"context"
	"fmt"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

func (s *Store) CreateAccount(ctx context.Context, acct *domain.Account) error {
	const q = `
		INSERT INTO accounts (id, email, tier, credits, free_trial_used, stripe_customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`
	_, err := s.db.Exec(ctx, q, acct.ID, acct.Email, acct.Tier, acct.Credits, acct.FreeTrialUsed, acct.StripeCustomerID)
	return translateErr(err)
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	const q = `
		SELECT id, email, tier, credits, free_trial_used, stripe_customer_id, created_at, updated_at
		FROM accounts WHERE id = $1`
	return s.scanAccount(s.db.QueryRow(ctx, q, id))
}

func (s *Store) GetAccountByStripeCustomer(ctx context.Context, customerID string) (*domain.Account, error) {
	const q = `
		SELECT id, email, tier, credits, free_trial_used, stripe_customer_id, created_at, updated_at
		FROM accounts WHERE stripe_customer_id = $1`
	return s.scanAccount(s.db.QueryRow(ctx, q, customerID))
}

func (s *Store) scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Tier, &a.Credits, &a.FreeTrialUsed, &a.StripeCustomerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (s *Store) SetTier(ctx context.Context, id uuid.UUID, tier domain.Tier) error {
	const q = `UPDATE accounts SET tier = $2, updated_at = now() WHERE id = $1`
	return s.execConditional(ctx, q, id, tier)
}

func (s *Store) SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	const q = `UPDATE accounts SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`
	return s.execConditional(ctx, q, id, customerID)
}

// SpendCredits is a single conditional decrement, not a read-then-write.
// The balance >= amount predicate closes the TOCTOU window left by any
// earlier snapshot read.
func (s *Store) SpendCredits(ctx context.Context, id uuid.UUID, amount int) error {
	if amount < 0 {
		return fmt.Errorf("spend credits: negative amount %d", amount)
	}
	const q = `
		UPDATE accounts SET credits = credits - $2, updated_at = now()
		WHERE id = $1 AND credits >= $2`
	return s.execConditional(ctx, q, id, amount)
}

func (s *Store) GrantCredits(ctx context.Context, id uuid.UUID, amount int) error {
	if amount < 0 {
		return fmt.Errorf("grant credits: negative amount %d", amount)
	}
	const q = `
		UPDATE accounts SET credits = credits + $2, updated_at = now()
		WHERE id = $1`
	return s.execConditional(ctx, q, id, amount)
}

// ClaimFreeTrial flips free_trial_used where it is still false. Two
// concurrent first-time requests race here; exactly one wins.
func (s *Store) ClaimFreeTrial(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE accounts SET free_trial_used = true, updated_at = now()
		WHERE id = $1 AND free_trial_used = false`
	return s.execConditional(ctx, q, id)
}
