package domain

import (
	"time"

	"github.com/google/uuid"
)

// PromoCode is a limited-use redemption code. CurrentUses <= MaxUses holds
// at all times: a use is claimed with a conditional increment before the
// external coupon is created, and the claim is compensated with a decrement
// if the downstream step fails.
type PromoCode struct {
	ID          uuid.UUID
	Code        string
	PercentOff  int
	MaxUses     int
	CurrentUses int
	Active      bool
	ValidFrom   time.Time
	ValidUntil  time.Time
	CreatedAt   time.Time
}

// Redeemable checks code-level validity at the given instant. The use-count
// bound is checked here only as a fast reject; the authoritative check is
// the store's conditional increment.
func (p *PromoCode) Redeemable(now time.Time) error {
	const op = "promo.redeemable"
	if !p.Active {
		return Invalid(op, "promo code is not active")
	}
	if now.Before(p.ValidFrom) {
		return Invalid(op, "promo code is not yet valid")
	}
	if now.After(p.ValidUntil) {
		return Invalid(op, "promo code has expired")
	}
	if p.CurrentUses >= p.MaxUses {
		return Conflict(op, "promo code has no uses remaining")
	}
	return nil
}
