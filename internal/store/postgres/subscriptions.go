package postgres

import (
	"context"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

func (s *Store) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	const q = `
		SELECT id, account_id, external_id, status, tier, period_start, period_end, created_at, updated_at
		FROM subscriptions
		WHERE external_id = $1`
	var sub domain.Subscription
	err := s.db.QueryRow(ctx, q, externalID).Scan(
		&sub.ID, &sub.AccountID, &sub.ExternalID, &sub.Status, &sub.Tier,
		&sub.PeriodStart, &sub.PeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &sub, nil
}

func (s *Store) GetSubscriptionByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Subscription, error) {
	const q = `
		SELECT id, account_id, external_id, status, tier, period_start, period_end, created_at, updated_at
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`
	var sub domain.Subscription
	err := s.db.QueryRow(ctx, q, accountID).Scan(
		&sub.ID, &sub.AccountID, &sub.ExternalID, &sub.Status, &sub.Tier,
		&sub.PeriodStart, &sub.PeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &sub, nil
}

// UpsertSubscription keys on the external billing subscription id: one row
// per external subscription, status-transitioned in place.
func (s *Store) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	const q = `
		INSERT INTO subscriptions (id, account_id, external_id, status, tier, period_start, period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			tier = EXCLUDED.tier,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			updated_at = now()`
	_, err := s.db.Exec(ctx, q,
		sub.ID, sub.AccountID, sub.ExternalID, sub.Status, sub.Tier, sub.PeriodStart, sub.PeriodEnd)
	return translateErr(err)
}
