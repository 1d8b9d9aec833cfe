package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
// Transitions are driven exclusively by inbound billing events; user-facing
// cancel/reactivate requests go through the billing collaborator first and
// only take effect here once the corresponding event arrives.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled" // active until period end, will not renew
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Valid reports whether the status is a known value.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusCancelled,
		SubscriptionStatusPastDue, SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

// Entitles reports whether the status still implies active entitlement.
// A cancelled subscription keeps its tier until the period ends.
func (s SubscriptionStatus) Entitles() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusCancelled
}

// Subscription mirrors one external billing subscription. One row per
// external subscription id; rows are status-transitioned, never deleted.
type Subscription struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	ExternalID  string // billing provider subscription id
	Status      SubscriptionStatus
	Tier        Tier
	PeriodStart time.Time
	PeriodEnd   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveTier returns the account tier implied by the subscription:
// its own tier while entitled, free otherwise.
func (s *Subscription) EffectiveTier() Tier {
	if s.Status.Entitles() {
		return s.Tier
	}
	return TierFree
}

// GrantRecord is the idempotency log for period credit grants. Uniqueness
// on (account, period_start) is the sole authority for "this billing period
// has already been credited", making grant processing safe under
// at-least-once webhook delivery.
type GrantRecord struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	PeriodStart time.Time
	Credits     int
	CreatedAt   time.Time
}
