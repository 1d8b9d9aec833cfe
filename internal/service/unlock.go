package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/metrics"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UnlockResult reports the outcome of an unlock call. CreditsUsed is the
// amount charged by THIS call: an idempotent replay returns 0 even when the
// original unlock was paid.
type UnlockResult struct {
	Unlock          *domain.SectionUnlock
	CreditsUsed     int
	AlreadyUnlocked bool
}

// UnlockService manages the section-unlock sub-ledger.
type UnlockService interface {
	// UnlockSection makes a section of an artifact visible. Idempotent: a
	// repeat call for an already-unlocked section succeeds with zero charge.
	// The credit method debits the current catalog unlock cost in the same
	// transaction as the record insert; ad_reward charges nothing.
	UnlockSection(ctx context.Context, accountID, artifactID uuid.UUID, sectionKey string, method domain.UnlockMethod) (*UnlockResult, error)

	// ListUnlocks returns the non-refunded unlocks for an artifact.
	ListUnlocks(ctx context.Context, accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error)
}

// =============================================================================
// Implementation
// =============================================================================

type unlockService struct {
	store  store.Store
	logger *slog.Logger
}

// NewUnlockService creates a new UnlockService.
func NewUnlockService(st store.Store, logger *slog.Logger) UnlockService {
	return &unlockService{store: st, logger: logger}
}

// UnlockSection runs the validation chain cheapest-first, then the
// idempotency lookup, then the charge. No conditional update executes until
// every rejection category has been checked.
func (s *unlockService) UnlockSection(ctx context.Context, accountID, artifactID uuid.UUID, sectionKey string, method domain.UnlockMethod) (*UnlockResult, error) {
	const op = "unlock.section"

	if !method.Valid() {
		return nil, domain.Invalid(op, "method must be credit or ad_reward")
	}
	if !domain.KnownSection(sectionKey) {
		return nil, domain.Invalid(op, "unknown section key")
	}

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "account", accountID.String())
		}
		return nil, domain.Internal(err, op, "failed to load account")
	}

	artifact, err := s.store.GetArtifact(ctx, artifactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "artifact", artifactID.String())
		}
		return nil, domain.Internal(err, op, "failed to load artifact")
	}
	if artifact.AccountID != accountID {
		return nil, domain.NotFound(op, "artifact", artifactID.String())
	}
	if !artifact.HasInterpretation() {
		return nil, domain.Invalid(op, "artifact has no interpretation yet, nothing to unlock")
	}
	if !artifact.Interpretation.HasSection(sectionKey) {
		return nil, domain.Invalid(op, "section not present in this interpretation")
	}

	// Idempotency lookup. An existing non-refunded record is the unlock; a
	// refunded one is treated as absent and re-charged in place.
	existing, err := s.store.GetSectionUnlock(ctx, accountID, artifactID, sectionKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, domain.Internal(err, op, "failed to load unlock record")
	}
	if existing != nil && !existing.Refunded {
		return &UnlockResult{Unlock: existing, CreditsUsed: 0, AlreadyUnlocked: true}, nil
	}

	cost := 0
	if method == domain.UnlockMethodCredit {
		priced, err := s.store.GetAction(ctx, domain.ActionSectionUnlock)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to load unlock pricing")
		}
		// Charged at the catalog price in effect now, not the price at
		// artifact creation time.
		cost = priced.UnlockCost
		if !acct.IsUnlimited() && acct.Credits < cost {
			metrics.InsufficientCreditsTotal.WithLabelValues(string(domain.ActionSectionUnlock)).Inc()
			return nil, domain.InsufficientCredits(op, cost, acct.Credits)
		}
		if acct.IsUnlimited() {
			cost = 0
		}
	}

	if existing != nil {
		return s.reinstate(ctx, op, existing, method, cost)
	}

	unlock := &domain.SectionUnlock{
		ID:          uuid.New(),
		AccountID:   accountID,
		ArtifactID:  artifactID,
		SectionKey:  sectionKey,
		Method:      method,
		CreditsUsed: cost,
	}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if cost > 0 {
			if err := tx.SpendCredits(ctx, accountID, cost); err != nil {
				return err
			}
		}
		return tx.CreateSectionUnlock(ctx, unlock)
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		// Raced with a concurrent unlock of the same section. The other
		// writer's record is authoritative and this call charged nothing.
		winner, getErr := s.store.GetSectionUnlock(ctx, accountID, artifactID, sectionKey)
		if getErr != nil {
			return nil, domain.Internal(getErr, op, "failed to load unlock after duplicate")
		}
		return &UnlockResult{Unlock: winner, CreditsUsed: 0, AlreadyUnlocked: true}, nil
	case errors.Is(err, store.ErrConditionFailed):
		acct, loadErr := s.store.GetAccount(ctx, accountID)
		if loadErr != nil {
			return nil, domain.Internal(loadErr, op, "failed to reload account")
		}
		metrics.InsufficientCreditsTotal.WithLabelValues(string(domain.ActionSectionUnlock)).Inc()
		return nil, domain.InsufficientCredits(op, cost, acct.Credits)
	default:
		return nil, domain.Internal(err, op, "failed to commit unlock")
	}

	if cost > 0 {
		metrics.CreditsSpentTotal.WithLabelValues(string(domain.ActionSectionUnlock)).Add(float64(cost))
	}
	metrics.ChargesTotal.WithLabelValues(string(domain.ActionSectionUnlock), string(method)).Inc()
	s.logger.Info("section unlocked",
		"account_id", accountID, "artifact_id", artifactID,
		"section", sectionKey, "method", method, "credits_used", cost)
	return &UnlockResult{Unlock: unlock, CreditsUsed: cost}, nil
}

// reinstate re-activates a refunded unlock record in place; the uniqueness
// key forbids inserting a second row for the same section.
func (s *unlockService) reinstate(ctx context.Context, op string, existing *domain.SectionUnlock, method domain.UnlockMethod, cost int) (*UnlockResult, error) {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if cost > 0 {
			if err := tx.SpendCredits(ctx, existing.AccountID, cost); err != nil {
				return err
			}
		}
		return tx.ReinstateSectionUnlock(ctx, existing.ID, method, cost)
	})
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			// Either the balance fell short or a concurrent call already
			// reinstated the record. Disambiguate on the fresh record.
			current, getErr := s.store.GetSectionUnlock(ctx, existing.AccountID, existing.ArtifactID, existing.SectionKey)
			if getErr == nil && current != nil && !current.Refunded {
				return &UnlockResult{Unlock: current, CreditsUsed: 0, AlreadyUnlocked: true}, nil
			}
			acct, loadErr := s.store.GetAccount(ctx, existing.AccountID)
			if loadErr != nil {
				return nil, domain.Internal(loadErr, op, "failed to reload account")
			}
			metrics.InsufficientCreditsTotal.WithLabelValues(string(domain.ActionSectionUnlock)).Inc()
			return nil, domain.InsufficientCredits(op, cost, acct.Credits)
		}
		return nil, domain.Internal(err, op, "failed to reinstate unlock")
	}

	existing.Method = method
	existing.CreditsUsed = cost
	existing.Refunded = false
	if cost > 0 {
		metrics.CreditsSpentTotal.WithLabelValues(string(domain.ActionSectionUnlock)).Add(float64(cost))
	}
	metrics.ChargesTotal.WithLabelValues(string(domain.ActionSectionUnlock), string(method)).Inc()
	return &UnlockResult{Unlock: existing, CreditsUsed: cost}, nil
}

func (s *unlockService) ListUnlocks(ctx context.Context, accountID, artifactID uuid.UUID) ([]*domain.SectionUnlock, error) {
	const op = "unlock.list"

	all, err := s.store.ListSectionUnlocks(ctx, accountID, artifactID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list unlocks")
	}
	active := make([]*domain.SectionUnlock, 0, len(all))
	for _, u := range all {
		if !u.Refunded {
			active = append(active, u)
		}
	}
	return active, nil
}
