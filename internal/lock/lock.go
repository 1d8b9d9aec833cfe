// Package lock provides a short-lived, key-scoped advisory lock.
//
// The lock serializes the "resolve entitlement, call slow collaborators,
// charge, persist" sequence per account, so two concurrent requests cannot
// both pay for and both generate what should be a single reading. Holds are
// TTL-bounded: a holder that crashes without releasing cannot starve later
// requests beyond the TTL.
//
// The charge itself is independently safe under the store's conditional
// updates; the lock is deliberate defense in depth plus external-cost
// deduplication, not the only line of defense.
package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 30 * time.Second

// CreateKey returns the lock key serializing creation flows for an account.
func CreateKey(accountID uuid.UUID) string {
	return fmt.Sprintf("create:%s", accountID)
}

// UnlockAIKey returns the lock key serializing deferred AI generation for
// an artifact.
func UnlockAIKey(artifactID uuid.UUID) string {
	return fmt.Sprintf("unlock-ai:%s", artifactID)
}

// Locker is the advisory lock contract. TryAcquire never blocks: a false
// return means another holder is active and the caller should either
// surface a conflict or poll for convergence.
type Locker interface {
	TryAcquire(key string) bool
	Release(key string)
}

// Keyed is an in-process TTL-bounded Locker.
type Keyed struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	held map[string]time.Time // key -> expiry
}

// NewKeyed creates a Keyed locker. A non-positive ttl falls back to
// DefaultTTL.
func NewKeyed(ttl time.Duration) *Keyed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Keyed{
		ttl:  ttl,
		now:  time.Now,
		held: make(map[string]time.Time),
	}
}

// TryAcquire attempts to take the key. An expired hold counts as free.
func (k *Keyed) TryAcquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if expiry, ok := k.held[key]; ok && now.Before(expiry) {
		return false
	}
	k.held[key] = now.Add(k.ttl)
	return true
}

// Release frees the key. Releasing an unheld key is a no-op, so callers can
// defer Release unconditionally on every exit path.
func (k *Keyed) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
