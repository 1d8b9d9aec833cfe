package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnlockMethod is how a section unlock was paid for.
type UnlockMethod string

const (
	UnlockMethodCredit   UnlockMethod = "credit"
	UnlockMethodAdReward UnlockMethod = "ad_reward"
)

// Valid reports whether the unlock method is known.
func (m UnlockMethod) Valid() bool {
	return m == UnlockMethodCredit || m == UnlockMethodAdReward
}

// Section keys that can be individually unlocked on an artifact.
const (
	SectionCareer        = "career"
	SectionWealth        = "wealth"
	SectionRelationships = "relationships"
	SectionHealth        = "health"
	SectionTiming        = "timing"
)

// KnownSection reports whether the key names an unlockable section.
func KnownSection(key string) bool {
	switch key {
	case SectionCareer, SectionWealth, SectionRelationships, SectionHealth, SectionTiming:
		return true
	default:
		return false
	}
}

// SectionUnlock is the per-(account, artifact, section) sub-ledger record.
// Its existence with Refunded=false is the sole authority for section
// visibility; a refunded record is treated as absent and re-charged.
type SectionUnlock struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	ArtifactID  uuid.UUID
	SectionKey  string
	Method      UnlockMethod
	CreditsUsed int
	Refunded    bool
	CreatedAt   time.Time
}
