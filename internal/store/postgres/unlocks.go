package postgres

import (
	"context"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

// CreateSectionUnlock relies on the unique (account_id, artifact_id,
// section_key) index; a replayed insert surfaces as store.ErrDuplicate.
func (s *Store) CreateSectionUnlock(ctx context.Context, u *domain.SectionUnlock) error {
	const q = `
		INSERT INTO section_unlocks (id, account_id, artifact_id, section_key, method, credits_used, refunded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`
	_, err := s.db.Exec(ctx, q, u.ID, u.AccountID, u.ArtifactID, u.SectionKey, u.Method, u.CreditsUsed, u.Refunded)
	return translateErr(err)
}

func (s *Store) GetSectionUnlock(ctx context.Context, accountID, artifactID uuid.UUID, sectionKey string) (*domain.SectionUnlock, error) {
	const q = `
		SELECT id, account_id, artifact_id, section_key, method, credits_used, refunded, created_at
		FROM section_unlocks
		WHERE account_id = $1 AND artifact_id = $2 AND section_key = $3`
	var u domain.SectionUnlock
	err := s.db.QueryRow(ctx, q, accountID, artifactID, sectionKey).Scan(
		&u.ID, &u.AccountID, &u.ArtifactID, &u.SectionKey, &u.Method, &u.CreditsUsed, &u.Refunded, &u.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

// RefundSectionUnlock hides the section again. The row stays in place so
// the uniqueness key keeps guarding future unlocks of the same section.
func (s *Store) RefundSectionUnlock(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE section_unlocks SET refunded = true
		WHERE id = $1 AND refunded = false`
	return s.execConditional(ctx, q, id)
}

// ReinstateSectionUnlock re-charges through a previously refunded record:
// the unique index forbids a second insert, so the row flips back in place.
func (s *Store) ReinstateSectionUnlock(ctx context.Context, id uuid.UUID, method domain.UnlockMethod, creditsUsed int) error {
	const q = `
		UPDATE section_unlocks SET method = $2, credits_used = $3, refunded = false
		WHERE id = $1 AND refunded = true`
	return s.execConditional(ctx, q, id, method, creditsUsed)
}

func (s *Store) ListSectionUnlocks(ctx context.Context, accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error) {
	const q = `
		SELECT id, account_id, artifact_id, section_key, method, credits_used, refunded, created_at
		FROM section_unlocks
		WHERE account_id = $1 AND artifact_id = $2
		ORDER BY created_at ASC`
	rows, err := s.db.Query(ctx, q, accountID, artifactID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*domain.SectionUnlock
	for rows.Next() {
		var u domain.SectionUnlock
		if err := rows.Scan(&u.ID, &u.AccountID, &u.ArtifactID, &u.SectionKey, &u.Method, &u.CreditsUsed, &u.Refunded, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
