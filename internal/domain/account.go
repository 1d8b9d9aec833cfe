// Package domain contains core business types and interfaces.
//
// This file defines the Account type: the billable identity holding the
// credit balance and subscription tier. The balance is the only truly shared
// mutable state in the system; it is never mutated through these types
// directly, only through the store's conditional-update primitives.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier represents the subscription tier of an account.
type Tier string

const (
	TierFree      Tier = "free"
	TierBasic     Tier = "basic"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPro, TierUnlimited:
		return true
	default:
		return false
	}
}

// Account represents a billable end-user identity.
//
// Credits and FreeTrialUsed are snapshots at read time. Any decision taken
// from them is re-verified by the store's conditional updates, so a stale
// snapshot can never cause a double-spend or a double trial claim.
type Account struct {
	ID               uuid.UUID
	Email            string
	Tier             Tier
	Credits          int
	FreeTrialUsed    bool
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsUnlimited returns true if the account bypasses credit charging entirely.
func (a *Account) IsUnlimited() bool {
	return a.Tier == TierUnlimited
}

// MonthlyCreditAllowance returns the credits granted per billing period for
// each tier. Unlimited plans are excluded from grants entirely: their bypass
// is decided at the entitlement resolver, never read from the balance.
func MonthlyCreditAllowance(t Tier) int {
	switch t {
	case TierBasic:
		return 10
	case TierPro:
		return 30
	default:
		return 0
	}
}
