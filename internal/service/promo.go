package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/astraea-labs/astraea/internal/billing"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PromoRedemption is the outcome of a successful redemption.
type PromoRedemption struct {
	Code            string
	PercentOff      int
	PromotionCodeID string // billing provider promotion code id
}

// PromoService redeems promo codes. Redemption is a two-step saga: the use
// is claimed against the local counter first, then the billing provider
// coupon is created; a provider failure compensates the claim with a
// decrement. The claim-then-create ordering is what enforces max_uses under
// concurrency.
type PromoService interface {
	// Redeem claims one use of the code and creates the provider promotion
	// code. Returns ECONFLICT when the code is exhausted.
	Redeem(ctx context.Context, accountID uuid.UUID, code string) (*PromoRedemption, error)

	// CreateCode registers a new promo code.
	CreateCode(ctx context.Context, code string, percentOff, maxUses int, validFrom, validUntil time.Time) (*domain.PromoCode, error)
}

// =============================================================================
// Implementation
// =============================================================================

type promoService struct {
	store   store.Store
	billing billing.Service
	logger  *slog.Logger
}

// NewPromoService creates a new PromoService.
func NewPromoService(st store.Store, b billing.Service, logger *slog.Logger) PromoService {
	return &promoService{store: st, billing: b, logger: logger}
}

func (s *promoService) Redeem(ctx context.Context, accountID uuid.UUID, code string) (*PromoRedemption, error) {
	const op = "promo.redeem"

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.Invalid(op, "code is required")
	}

	promo, err := s.store.GetPromoByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "promo code", code)
		}
		return nil, domain.Internal(err, op, "failed to load promo code")
	}
	if err := promo.Redeemable(time.Now().UTC()); err != nil {
		return nil, err
	}

	// Claim before the provider call. The conditional increment is the only
	// admission control; the Redeemable check above is advisory.
	if err := s.store.ClaimPromoUse(ctx, promo.ID); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, domain.Conflict(op, "promo code has no uses remaining")
		}
		return nil, domain.Internal(err, op, "failed to claim promo use")
	}

	pcID, err := s.billing.CreatePromotionCoupon(code, promo.PercentOff)
	if err != nil {
		// Compensate: the claim preceded a call that cannot join the local
		// transaction, so it is rolled back by hand.
		if relErr := s.store.ReleasePromoUse(ctx, promo.ID); relErr != nil {
			s.logger.Error("promo claim compensation failed",
				"promo_id", promo.ID, "error", relErr)
		}
		return nil, domain.Upstream(err, op, "failed to create billing coupon")
	}

	s.logger.Info("promo redeemed",
		"account_id", accountID, "code", code, "percent_off", promo.PercentOff)
	return &PromoRedemption{
		Code:            code,
		PercentOff:      promo.PercentOff,
		PromotionCodeID: pcID,
	}, nil
}

func (s *promoService) CreateCode(ctx context.Context, code string, percentOff, maxUses int, validFrom, validUntil time.Time) (*domain.PromoCode, error) {
	const op = "promo.create"

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.Invalid(op, "code is required")
	}
	if percentOff <= 0 || percentOff > 100 {
		return nil, domain.Invalid(op, "percent_off must be between 1 and 100")
	}
	if maxUses <= 0 {
		return nil, domain.Invalid(op, "max_uses must be positive")
	}

	promo := &domain.PromoCode{
		ID:         uuid.New(),
		Code:       code,
		PercentOff: percentOff,
		MaxUses:    maxUses,
		Active:     true,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
	}
	if err := s.store.CreatePromoCode(ctx, promo); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.Conflict(op, "promo code already exists")
		}
		return nil, domain.Internal(err, op, "failed to create promo code")
	}
	return promo, nil
}
