package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/metrics"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Balance is the account's entitlement snapshot as shown to clients.
type Balance struct {
	Credits       int
	Tier          domain.Tier
	FreeTrialUsed bool
	Unlimited     bool
}

// AccountService manages accounts and the balance view.
type AccountService interface {
	// Register creates a new account on the free tier with zero credits and
	// an unused free trial.
	Register(ctx context.Context, email string) (*domain.Account, error)

	// Get returns the account.
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// GetBalance returns the entitlement snapshot for the account.
	GetBalance(ctx context.Context, id uuid.UUID) (*Balance, error)

	// GrantCredits adds credits to the balance outside the subscription
	// grant path (support adjustments, refunds).
	GrantCredits(ctx context.Context, id uuid.UUID, amount int) error
}

// =============================================================================
// Implementation
// =============================================================================

type accountService struct {
	store  store.Store
	logger *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(st store.Store, logger *slog.Logger) AccountService {
	return &accountService{store: st, logger: logger}
}

func (s *accountService) Register(ctx context.Context, email string) (*domain.Account, error) {
	const op = "account.register"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.Invalid(op, "a valid email is required")
	}

	acct := &domain.Account{
		ID:    uuid.New(),
		Email: email,
		Tier:  domain.TierFree,
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.Conflict(op, "an account with this email already exists")
		}
		return nil, domain.Internal(err, op, "failed to create account")
	}

	s.logger.Info("account registered", "account_id", acct.ID, "email", email)
	return acct, nil
}

func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	const op = "account.get"

	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "account", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load account")
	}
	return acct, nil
}

func (s *accountService) GetBalance(ctx context.Context, id uuid.UUID) (*Balance, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Credits:       acct.Credits,
		Tier:          acct.Tier,
		FreeTrialUsed: acct.FreeTrialUsed,
		Unlimited:     acct.IsUnlimited(),
	}, nil
}

func (s *accountService) GrantCredits(ctx context.Context, id uuid.UUID, amount int) error {
	const op = "account.grant_credits"

	if amount <= 0 {
		return domain.Invalid(op, "amount must be positive")
	}
	if err := s.store.GrantCredits(ctx, id, amount); err != nil {
		// Both stores report a missing account as a failed update predicate.
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConditionFailed) {
			return domain.NotFound(op, "account", id.String())
		}
		return domain.Internal(err, op, "failed to grant credits")
	}
	metrics.CreditsGrantedTotal.Add(float64(amount))
	return nil
}
