// Package service contains the business logic layer.
//
// Services orchestrate the store, the advisory lock, and the external
// collaborators. They are responsible for:
// - Input validation
// - Entitlement resolution and charge sequencing
// - Transaction coordination
// - Error translation (store errors -> domain errors)
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/astraea-labs/astraea/internal/ai"
	"github.com/astraea-labs/astraea/internal/calc"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/lock"
	"github.com/astraea-labs/astraea/internal/metrics"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// Deferred-AI convergence polling. When another request holds the
// generation lock, the caller waits for it to finish rather than erroring;
// this path is best-effort, the idempotency check is re-verified under the
// lock either way.
const (
	deferredPollInterval = 500 * time.Millisecond
	deferredPollAttempts = 10
)

// =============================================================================
// Interface Definition
// =============================================================================

// CreateReadingParams contains validated parameters for creating a reading.
type CreateReadingParams struct {
	AccountID    uuid.UUID
	Action       domain.ActionType // lifetime_reading or annual_reading
	Subject      domain.BirthData
	TargetPeriod string // annual readings only
}

// CreateComparisonParams contains validated parameters for a comparison.
type CreateComparisonParams struct {
	AccountID    uuid.UUID
	Subject      domain.BirthData
	Partner      domain.BirthData
	TargetPeriod string
}

// ArtifactService creates readings and comparisons and manages deferred AI
// generation. All creation flows run the same parameterized pipeline:
// resolve entitlement, acquire the per-account lock, invoke the external
// collaborators, commit the charge and the artifact in one transaction.
type ArtifactService interface {
	// CreateReading creates a lifetime or annual reading.
	// Returns domain.EPAYMENT when the balance cannot cover the action cost,
	// before any external collaborator is invoked.
	// Returns domain.ECONFLICT when another creation is in flight for the
	// same account.
	CreateReading(ctx context.Context, params CreateReadingParams) (*domain.Artifact, error)

	// CreateComparison creates a compatibility comparison between two charts.
	// Same contract as CreateReading.
	CreateComparison(ctx context.Context, params CreateComparisonParams) (*domain.Artifact, error)

	// GenerateInterpretation attaches AI output to an artifact that is
	// chart-only. Idempotent and free: if interpretation already exists it is
	// returned as-is. On lock contention the call polls for the concurrent
	// holder to finish and returns the current state.
	GenerateInterpretation(ctx context.Context, accountID, artifactID uuid.UUID) (*domain.Artifact, error)

	// GetArtifact returns an artifact owned by the account.
	GetArtifact(ctx context.Context, accountID, artifactID uuid.UUID) (*domain.Artifact, error)
}

// =============================================================================
// Implementation
// =============================================================================

type artifactService struct {
	store       store.Store
	locker      lock.Locker
	engine      calc.Engine
	interpreter ai.Interpreter
	logger      *slog.Logger
}

// NewArtifactService creates a new ArtifactService.
func NewArtifactService(st store.Store, locker lock.Locker, engine calc.Engine, interpreter ai.Interpreter, logger *slog.Logger) ArtifactService {
	return &artifactService{
		store:       st,
		locker:      locker,
		engine:      engine,
		interpreter: interpreter,
		logger:      logger,
	}
}

func (s *artifactService) CreateReading(ctx context.Context, params CreateReadingParams) (*domain.Artifact, error) {
	const op = "reading.create"

	if params.Action != domain.ActionLifetimeReading && params.Action != domain.ActionAnnualReading {
		return nil, domain.Invalid(op, "action must be lifetime_reading or annual_reading")
	}
	if err := params.Subject.Validate(); err != nil {
		return nil, err
	}
	if params.Action == domain.ActionAnnualReading && params.TargetPeriod == "" {
		return nil, domain.Invalid(op, "target_period is required for annual readings")
	}

	return s.create(ctx, op, params.AccountID, params.Action, params.Subject, nil, params.TargetPeriod)
}

func (s *artifactService) CreateComparison(ctx context.Context, params CreateComparisonParams) (*domain.Artifact, error) {
	const op = "comparison.create"

	if err := params.Subject.Validate(); err != nil {
		return nil, err
	}
	if err := params.Partner.Validate(); err != nil {
		return nil, err
	}

	return s.create(ctx, op, params.AccountID, domain.ActionComparison, params.Subject, &params.Partner, params.TargetPeriod)
}

// create is the shared creation pipeline. The ordering is load-bearing:
// every rejection category (validation, not-found, insufficient funds,
// conflict) is checked before the calculation engine or the AI provider is
// invoked, and the charge is committed in the same transaction as the
// artifact row.
func (s *artifactService) create(ctx context.Context, op string, accountID uuid.UUID, action domain.ActionType, subject domain.BirthData, partner *domain.BirthData, targetPeriod string) (*domain.Artifact, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "account", accountID.String())
		}
		return nil, domain.Internal(err, op, "failed to load account")
	}

	priced, err := s.store.GetAction(ctx, action)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load action pricing")
	}

	fingerprint := domain.Fingerprint(action, subject, partner, targetPeriod)

	// Resolve once before taking the lock so an insufficient balance is
	// rejected without contending at all.
	cached, err := s.cachedArtifact(ctx, accountID, fingerprint)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to check fingerprint cache")
	}
	mode, err := domain.ResolveChargeMode(acct, priced.CreditCost, cached != nil)
	if err != nil {
		metrics.InsufficientCreditsTotal.WithLabelValues(string(action)).Inc()
		return nil, err
	}

	key := lock.CreateKey(accountID)
	if !s.locker.TryAcquire(key) {
		metrics.LockContentionTotal.WithLabelValues("create").Inc()
		return nil, domain.Conflict(op, "another creation is in progress for this account, try again")
	}
	defer s.locker.Release(key)

	// Re-resolve under the lock: the previous holder may have claimed the
	// trial, spent credits, or created this very fingerprint.
	acct, err = s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to reload account")
	}
	cached, err = s.cachedArtifact(ctx, accountID, fingerprint)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to recheck fingerprint cache")
	}
	mode, err = domain.ResolveChargeMode(acct, priced.CreditCost, cached != nil)
	if err != nil {
		metrics.InsufficientCreditsTotal.WithLabelValues(string(action)).Inc()
		return nil, err
	}

	artifact := &domain.Artifact{
		ID:           uuid.New(),
		AccountID:    accountID,
		Type:         action,
		Fingerprint:  fingerprint,
		ChargeMode:   mode,
		Subject:      subject,
		Partner:      partner,
		TargetPeriod: targetPeriod,
	}
	if action == domain.ActionComparison {
		artifact.LastCalculatedPeriod = currentPeriod(time.Now())
	}

	if mode == domain.ChargeModeCacheHit && cached != nil {
		// Reuse the previously paid-for computation, including its real
		// provenance. No calculation, no AI call, no debit.
		artifact.ChartData = cached.ChartData
		artifact.Interpretation = cached.Interpretation
	} else {
		chart, err := s.engine.CalculateChart(ctx, calc.ChartRequest{
			Action:       action,
			Subject:      subject,
			Partner:      partner,
			TargetPeriod: targetPeriod,
		})
		if err != nil {
			// Calculation failure aborts the whole action. Nothing has been
			// charged at this point.
			metrics.CalcRequestsTotal.WithLabelValues("error").Inc()
			if errors.Is(err, calc.ErrInvalidInput) {
				return nil, domain.Invalid(op, "calculation engine rejected the birth parameters")
			}
			return nil, domain.Upstream(err, op, "chart calculation failed")
		}
		metrics.CalcRequestsTotal.WithLabelValues("ok").Inc()
		artifact.ChartData = chart.Data
		artifact.Interpretation = s.tryInterpret(ctx, artifact)
	}

	if err := s.commitCreation(ctx, op, artifact, priced.CreditCost, &mode); err != nil {
		return nil, err
	}

	metrics.ChargesTotal.WithLabelValues(string(action), string(mode)).Inc()
	if artifact.CreditsCharged > 0 {
		metrics.CreditsSpentTotal.WithLabelValues(string(action)).Add(float64(artifact.CreditsCharged))
	}

	s.logger.Info("artifact created",
		"account_id", accountID,
		"artifact_id", artifact.ID,
		"action", action,
		"mode", mode,
		"credits_charged", artifact.CreditsCharged,
	)
	return artifact, nil
}

// tryInterpret calls the AI collaborator and tolerates its failure: the
// action still completes chart-only at the resolved cost, and the deferred
// path can attach the interpretation later.
func (s *artifactService) tryInterpret(ctx context.Context, artifact *domain.Artifact) *domain.Interpretation {
	result, err := s.interpreter.Interpret(ctx, ai.InterpretParams{
		Action:     artifact.Type,
		ChartData:  artifact.ChartData,
		ArtifactID: artifact.ID,
		AccountID:  artifact.AccountID,
	})
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("unknown", "error").Inc()
		s.logger.Warn("interpretation failed, completing chart-only",
			"artifact_id", artifact.ID, "error", err)
		return nil
	}
	metrics.AIRequestsTotal.WithLabelValues(result.Usage.Provider, "ok").Inc()
	metrics.AITokensTotal.WithLabelValues(result.Usage.Provider, "input").Add(float64(result.Usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues(result.Usage.Provider, "output").Add(float64(result.Usage.OutputTokens))

	return &domain.Interpretation{
		Sections:     result.Sections,
		Provider:     result.Usage.Provider,
		Model:        result.Usage.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		GeneratedAt:  time.Now().UTC(),
	}
}

// commitCreation applies the charge (or trial claim) and inserts the
// artifact in one transaction. Once this commits the charge is final; no
// later enrichment failure reverses it.
//
// A lost trial race (possible if the lock TTL expired under a slow holder)
// downgrades to a fresh resolution and one retry, so the loser of the race
// is charged normally or rejected.
func (s *artifactService) commitCreation(ctx context.Context, op string, artifact *domain.Artifact, cost int, mode *domain.ChargeMode) error {
	for attempt := 0; attempt < 2; attempt++ {
		artifact.ChargeMode = *mode
		if mode.ChargesBalance() {
			artifact.CreditsCharged = cost
		} else {
			artifact.CreditsCharged = 0
		}

		err := s.store.WithTx(ctx, func(tx store.Store) error {
			switch *mode {
			case domain.ChargeModePaid:
				if cost > 0 {
					if err := tx.SpendCredits(ctx, artifact.AccountID, cost); err != nil {
						return err
					}
				}
			case domain.ChargeModeFreeTrial:
				if err := tx.ClaimFreeTrial(ctx, artifact.AccountID); err != nil {
					return err
				}
			}
			return tx.CreateArtifact(ctx, artifact)
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, store.ErrConditionFailed) {
			acct, loadErr := s.store.GetAccount(ctx, artifact.AccountID)
			if loadErr != nil {
				return domain.Internal(loadErr, op, "failed to reload account after charge conflict")
			}
			if *mode == domain.ChargeModePaid {
				metrics.InsufficientCreditsTotal.WithLabelValues(string(artifact.Type)).Inc()
				return domain.InsufficientCredits(op, cost, acct.Credits)
			}
			// Trial was claimed concurrently: resolve again from the fresh
			// snapshot and retry once.
			next, resolveErr := domain.ResolveChargeMode(acct, cost, false)
			if resolveErr != nil {
				metrics.InsufficientCreditsTotal.WithLabelValues(string(artifact.Type)).Inc()
				return resolveErr
			}
			*mode = next
			continue
		}
		return domain.Internal(err, op, "failed to commit creation")
	}
	return domain.Conflict(op, "creation raced with a concurrent request, try again")
}

func (s *artifactService) cachedArtifact(ctx context.Context, accountID uuid.UUID, fingerprint string) (*domain.Artifact, error) {
	cached, err := s.store.GetArtifactByFingerprint(ctx, accountID, fingerprint)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func (s *artifactService) GetArtifact(ctx context.Context, accountID, artifactID uuid.UUID) (*domain.Artifact, error) {
	const op = "artifact.get"

	artifact, err := s.store.GetArtifact(ctx, artifactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "artifact", artifactID.String())
		}
		return nil, domain.Internal(err, op, "failed to load artifact")
	}
	if artifact.AccountID != accountID {
		// Not revealing that the artifact exists for someone else.
		return nil, domain.NotFound(op, "artifact", artifactID.String())
	}
	return artifact, nil
}

// GenerateInterpretation is the deferred AI path: zero cost, idempotent,
// serialized per artifact by the unlock-ai lock.
func (s *artifactService) GenerateInterpretation(ctx context.Context, accountID, artifactID uuid.UUID) (*domain.Artifact, error) {
	const op = "artifact.generate_interpretation"

	artifact, err := s.GetArtifact(ctx, accountID, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.HasInterpretation() {
		return artifact, nil
	}

	key := lock.UnlockAIKey(artifactID)
	if !s.locker.TryAcquire(key) {
		metrics.LockContentionTotal.WithLabelValues("unlock_ai").Inc()
		// Someone else is generating. Wait for them to finish and return
		// whatever state is current; correctness does not depend on this
		// converging, only user experience.
		return s.pollForInterpretation(ctx, accountID, artifactID)
	}
	defer s.locker.Release(key)

	// Re-verify under the lock; the previous holder may have finished
	// between our check and the acquisition.
	artifact, err = s.GetArtifact(ctx, accountID, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.HasInterpretation() {
		return artifact, nil
	}

	interp := s.tryInterpret(ctx, artifact)
	if interp == nil {
		return nil, domain.Upstream(nil, op, "interpretation generation failed, try again later")
	}
	if err := s.store.SetInterpretation(ctx, artifactID, interp); err != nil {
		return nil, domain.Internal(err, op, "failed to store interpretation")
	}
	artifact.Interpretation = interp
	return artifact, nil
}

func (s *artifactService) pollForInterpretation(ctx context.Context, accountID, artifactID uuid.UUID) (*domain.Artifact, error) {
	var artifact *domain.Artifact
	var err error
	for i := 0; i < deferredPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(deferredPollInterval):
		}
		artifact, err = s.GetArtifact(ctx, accountID, artifactID)
		if err != nil {
			return nil, err
		}
		if artifact.HasInterpretation() {
			return artifact, nil
		}
	}
	return artifact, nil
}

// currentPeriod formats the period marker used for comparison
// recalculation, e.g. "2026-08".
func currentPeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}
