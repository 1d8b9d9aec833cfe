package postgres

import (
	"context"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

// CreateGrantRecord relies on the unique (account_id, period_start) index.
// A duplicate webhook delivery surfaces as store.ErrDuplicate and is
// swallowed by the reconciler as an idempotency no-op.
func (s *Store) CreateGrantRecord(ctx context.Context, g *domain.GrantRecord) error {
	const q = `
		INSERT INTO grant_records (id, account_id, period_start, credits, created_at)
		VALUES ($1, $2, $3, $4, now())`
	_, err := s.db.Exec(ctx, q, g.ID, g.AccountID, g.PeriodStart, g.Credits)
	return translateErr(err)
}

func (s *Store) GetGrantRecord(ctx context.Context, accountID uuid.UUID, periodStart time.Time) (*domain.GrantRecord, error) {
	const q = `
		SELECT id, account_id, period_start, credits, created_at
		FROM grant_records
		WHERE account_id = $1 AND period_start = $2`
	var g domain.GrantRecord
	err := s.db.QueryRow(ctx, q, accountID, periodStart).Scan(&g.ID, &g.AccountID, &g.PeriodStart, &g.Credits, &g.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &g, nil
}
