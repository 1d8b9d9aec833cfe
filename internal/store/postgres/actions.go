package postgres

import (
	"context"

	"github.com/astraea-labs/astraea/internal/domain"
)

func (s *Store) GetAction(ctx context.Context, t domain.ActionType) (*domain.PriceableAction, error) {
	const q = `SELECT type, credit_cost, unlock_cost FROM priceable_actions WHERE type = $1`
	var a domain.PriceableAction
	err := s.db.QueryRow(ctx, q, t).Scan(&a.Type, &a.CreditCost, &a.UnlockCost)
	if err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (s *Store) UpsertAction(ctx context.Context, a *domain.PriceableAction) error {
	const q = `
		INSERT INTO priceable_actions (type, credit_cost, unlock_cost)
		VALUES ($1, $2, $3)
		ON CONFLICT (type) DO UPDATE SET
			credit_cost = EXCLUDED.credit_cost,
			unlock_cost = EXCLUDED.unlock_cost`
	_, err := s.db.Exec(ctx, q, a.Type, a.CreditCost, a.UnlockCost)
	return translateErr(err)
}

func (s *Store) SeedAction(ctx context.Context, a *domain.PriceableAction) error {
	const q = `
		INSERT INTO priceable_actions (type, credit_cost, unlock_cost)
		VALUES ($1, $2, $3)
		ON CONFLICT (type) DO NOTHING`
	_, err := s.db.Exec(ctx, q, a.Type, a.CreditCost, a.UnlockCost)
	return translateErr(err)
}
