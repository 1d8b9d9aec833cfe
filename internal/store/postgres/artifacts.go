package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateArtifact(ctx context.Context, a *domain.Artifact) error {
	subject, err := json.Marshal(a.Subject)
	if err != nil {
		return fmt.Errorf("marshal subject: %w", err)
	}
	var partner []byte
	if a.Partner != nil {
		if partner, err = json.Marshal(a.Partner); err != nil {
			return fmt.Errorf("marshal partner: %w", err)
		}
	}
	var interp []byte
	if a.Interpretation != nil {
		if interp, err = json.Marshal(a.Interpretation); err != nil {
			return fmt.Errorf("marshal interpretation: %w", err)
		}
	}

	const q = `
		INSERT INTO artifacts (
			id, account_id, type, fingerprint, charge_mode, credits_charged,
			subject, partner, target_period, chart_data, interpretation,
			last_calculated_period, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())`
	_, err = s.db.Exec(ctx, q,
		a.ID, a.AccountID, a.Type, a.Fingerprint, a.ChargeMode, a.CreditsCharged,
		subject, partner, a.TargetPeriod, []byte(a.ChartData), interp, a.LastCalculatedPeriod)
	return translateErr(err)
}

const artifactColumns = `
	id, account_id, type, fingerprint, charge_mode, credits_charged,
	subject, partner, target_period, chart_data, interpretation,
	last_calculated_period, created_at, updated_at`

func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	q := `SELECT` + artifactColumns + ` FROM artifacts WHERE id = $1`
	return scanArtifact(s.db.QueryRow(ctx, q, id))
}

func (s *Store) GetArtifactByFingerprint(ctx context.Context, accountID uuid.UUID, fingerprint string) (*domain.Artifact, error) {
	q := `SELECT` + artifactColumns + `
		FROM artifacts
		WHERE account_id = $1 AND fingerprint = $2
		ORDER BY created_at DESC
		LIMIT 1`
	return scanArtifact(s.db.QueryRow(ctx, q, accountID, fingerprint))
}

func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	var (
		a         domain.Artifact
		subject   []byte
		partner   []byte
		chartData []byte
		interp    []byte
	)
	err := row.Scan(
		&a.ID, &a.AccountID, &a.Type, &a.Fingerprint, &a.ChargeMode, &a.CreditsCharged,
		&subject, &partner, &a.TargetPeriod, &chartData, &interp,
		&a.LastCalculatedPeriod, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	if err := json.Unmarshal(subject, &a.Subject); err != nil {
		return nil, fmt.Errorf("unmarshal subject: %w", err)
	}
	if len(partner) > 0 {
		a.Partner = &domain.BirthData{}
		if err := json.Unmarshal(partner, a.Partner); err != nil {
			return nil, fmt.Errorf("unmarshal partner: %w", err)
		}
	}
	a.ChartData = json.RawMessage(chartData)
	if len(interp) > 0 {
		a.Interpretation = &domain.Interpretation{}
		if err := json.Unmarshal(interp, a.Interpretation); err != nil {
			return nil, fmt.Errorf("unmarshal interpretation: %w", err)
		}
	}
	return &a, nil
}

func (s *Store) SetInterpretation(ctx context.Context, id uuid.UUID, interp *domain.Interpretation) error {
	data, err := json.Marshal(interp)
	if err != nil {
		return fmt.Errorf("marshal interpretation: %w", err)
	}
	const q = `UPDATE artifacts SET interpretation = $2, updated_at = now() WHERE id = $1`
	return s.execConditional(ctx, q, id, data)
}

func (s *Store) ListStaleComparisons(ctx context.Context, currentPeriod string, limit int) ([]*domain.Artifact, error) {
	q := `SELECT` + artifactColumns + `
		FROM artifacts
		WHERE type = $1 AND last_calculated_period <> '' AND last_calculated_period < $2
		ORDER BY updated_at ASC
		LIMIT $3`
	rows, err := s.db.Query(ctx, q, domain.ActionComparison, currentPeriod, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SetComparisonCalculated(ctx context.Context, id uuid.UUID, chartData json.RawMessage, period string) error {
	const q = `
		UPDATE artifacts SET chart_data = $2, last_calculated_period = $3, updated_at = now()
		WHERE id = $1`
	return s.execConditional(ctx, q, id, []byte(chartData), period)
}
