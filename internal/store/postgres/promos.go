package postgres

import (
	"context"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

func (s *Store) CreatePromoCode(ctx context.Context, p *domain.PromoCode) error {
	const q = `
		INSERT INTO promo_codes (id, code, percent_off, max_uses, current_uses, active, valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`
	_, err := s.db.Exec(ctx, q, p.ID, p.Code, p.PercentOff, p.MaxUses, p.CurrentUses, p.Active, p.ValidFrom, p.ValidUntil)
	return translateErr(err)
}

func (s *Store) GetPromoByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	const q = `
		SELECT id, code, percent_off, max_uses, current_uses, active, valid_from, valid_until, created_at
		FROM promo_codes
		WHERE code = $1`
	var p domain.PromoCode
	err := s.db.QueryRow(ctx, q, code).Scan(
		&p.ID, &p.Code, &p.PercentOff, &p.MaxUses, &p.CurrentUses, &p.Active, &p.ValidFrom, &p.ValidUntil, &p.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

// ClaimPromoUse closes the race where two concurrent redemptions both pass
// the initial read but only one use remains.
func (s *Store) ClaimPromoUse(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE promo_codes SET current_uses = current_uses + 1
		WHERE id = $1 AND current_uses < max_uses`
	return s.execConditional(ctx, q, id)
}

func (s *Store) ReleasePromoUse(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE promo_codes SET current_uses = current_uses - 1
		WHERE id = $1 AND current_uses > 0`
	return s.execConditional(ctx, q, id)
}
